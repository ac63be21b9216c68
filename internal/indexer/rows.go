package indexer

import (
	"sort"
	"time"

	"github.com/shopforge/catalogsearch/internal/catalog"
	"github.com/shopforge/catalogsearch/internal/domain"
)

// languagesOf returns every language a product is translated into, with the
// session language always present and first. Order is deterministic.
func languagesOf(p *catalog.ProductSnapshot, sessionLanguage string) []string {
	langs := []string{sessionLanguage}
	extra := make([]string, 0, len(p.Translations))
	for lang := range p.Translations {
		if lang != sessionLanguage {
			extra = append(extra, lang)
		}
	}
	sort.Strings(extra)
	return append(langs, extra...)
}

// variantInChannel reports whether a variant is sellable in the channel. A
// variant without explicit channel assignments follows its product.
func variantInChannel(v *catalog.VariantSnapshot, channelID string) bool {
	if len(v.ChannelIDs) == 0 {
		return true
	}
	for _, id := range v.ChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}

// buildProductRows projects one product into its index rows for a channel,
// across the given languages. A product whose variants are all outside the
// channel (or that has none) produces one synthetic placeholder row per
// language so it stays discoverable.
func buildProductRows(p *catalog.ProductSnapshot, channelID string, languages []string, now time.Time) []domain.IndexRow {
	var rows []domain.IndexRow
	for _, lang := range languages {
		tr := p.TranslationFor(lang)
		inChannel := 0
		for i := range p.Variants {
			v := &p.Variants[i]
			if !variantInChannel(v, channelID) {
				continue
			}
			inChannel++
			rows = append(rows, domain.IndexRow{
				ProductVariantID: v.ID,
				LanguageCode:     lang,
				ChannelID:        channelID,
				ProductID:        p.ID,
				Enabled:          p.Enabled && v.Enabled,
				ProductName:      tr.Name,
				VariantName:      v.NameFor(lang),
				Description:      tr.Description,
				Slug:             tr.Slug,
				SKU:              v.SKU,
				Price:            v.Price,
				PriceWithTax:     v.PriceWithTax,
				CurrencyCode:     v.CurrencyCode,
				FacetIDs:         domain.JoinIDs(unionStrings(p.FacetIDs, v.FacetIDs)),
				FacetValueIDs:    domain.JoinIDs(unionStrings(p.FacetValueIDs, v.FacetValueIDs)),
				CollectionIDs:    domain.JoinIDs(v.CollectionIDs),
				CollectionSlugs:  domain.JoinIDs(v.CollectionSlugs),
				ProductPreview:   p.Preview,
				VariantPreview:   v.Preview,
				ProductAssetID:   p.AssetID,
				VariantAssetID:   v.AssetID,
				UpdatedAt:        now,
			})
		}
		if inChannel == 0 {
			rows = append(rows, syntheticRow(p, tr, channelID, lang, now))
		}
	}
	return rows
}

// syntheticRow is the placeholder row for a product with no variants in the
// channel. It reuses the product's own identity as the variant key.
func syntheticRow(p *catalog.ProductSnapshot, tr catalog.Translation, channelID, lang string, now time.Time) domain.IndexRow {
	return domain.IndexRow{
		ProductVariantID: domain.SyntheticVariantID(p.ID),
		LanguageCode:     lang,
		ChannelID:        channelID,
		ProductID:        p.ID,
		Enabled:          p.Enabled,
		Synthetic:        true,
		ProductName:      tr.Name,
		VariantName:      tr.Name,
		Description:      tr.Description,
		Slug:             tr.Slug,
		FacetIDs:         domain.JoinIDs(p.FacetIDs),
		FacetValueIDs:    domain.JoinIDs(p.FacetValueIDs),
		ProductPreview:   p.Preview,
		ProductAssetID:   p.AssetID,
		UpdatedAt:        now,
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
