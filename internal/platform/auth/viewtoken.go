package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ViewTokenIssuer mints the short-lived tokens handed out after a patient
// verifies their date of birth against a statement short code. The token
// scopes access to exactly one statement; it carries no other privileges.
type ViewTokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

type viewClaims struct {
	jwt.RegisteredClaims
	StatementID string `json:"stmt"`
	ShortCode   string `json:"code"`
}

// NewViewTokenIssuer creates an issuer signing with the given HMAC secret.
// A non-positive ttl defaults to 15 minutes.
func NewViewTokenIssuer(secret []byte, ttl time.Duration) *ViewTokenIssuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ViewTokenIssuer{secret: secret, ttl: ttl}
}

// Issue mints a token granting view access to the given statement.
func (i *ViewTokenIssuer) Issue(statementID uuid.UUID, shortCode string) (string, error) {
	now := time.Now()
	claims := viewClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   statementID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		StatementID: statementID.String(),
		ShortCode:   shortCode,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify checks a token and returns the statement id it grants access to.
func (i *ViewTokenIssuer) Verify(tokenStr string) (uuid.UUID, error) {
	claims := &viewClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid view token")
	}
	id, err := uuid.Parse(claims.StatementID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid view token subject")
	}
	return id, nil
}
