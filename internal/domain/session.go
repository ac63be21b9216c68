package domain

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionContext is the request scope a task needs to re-authorize and scope
// its write: the active channel, language, currency, and the acting user's
// identity and permissions. It crosses the queue boundary as a signed token
// rather than a live object.
type SessionContext struct {
	ChannelID    string   `json:"channel_id"`
	LanguageCode string   `json:"language_code"`
	CurrencyCode string   `json:"currency_code"`
	ActorID      string   `json:"actor_id,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
}

// HasPermission reports whether the session holds the named permission.
func (s *SessionContext) HasPermission(permission string) bool {
	for _, p := range s.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

type sessionClaims struct {
	Session SessionContext `json:"session"`
	jwt.RegisteredClaims
}

// sessionTokenTTL bounds how long a queued task's session token stays valid.
// Long enough to survive a deep queue backlog, short enough that leaked
// tokens age out.
const sessionTokenTTL = 7 * 24 * time.Hour

// SignSession serializes a session context into a signed HS256 token for
// embedding in task payloads.
func SignSession(secret []byte, sc *SessionContext) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Session: *sc,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTokenTTL)),
			Subject:   sc.ActorID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// VerifySession validates a session token and reconstructs the session
// context it carries.
func VerifySession(secret []byte, tokenString string) (*SessionContext, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify session token: %w", err)
	}

	sc := claims.Session
	if sc.ChannelID == "" || sc.LanguageCode == "" {
		return nil, fmt.Errorf("verify session token: missing channel or language scope")
	}
	return &sc, nil
}
