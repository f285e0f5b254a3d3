// Package auth verifies bearer tokens issued by the MedFlow auth service.
// Tokens are never issued here.
package auth

import (
	"errors"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/medflow/medflow-stock/pkg/actor"
	"github.com/medflow/medflow-stock/pkg/config"
	apperrors "github.com/medflow/medflow-stock/pkg/errors"
)

// Claims represents the access token claims the stock service relies on
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// Verifier validates access tokens
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier creates a verifier for HMAC-signed tokens
func NewVerifier(cfg *config.JWTConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
	}
}

// Verify validates a token and returns the actor it identifies
func (v *Verifier) Verify(tokenString string) (*actor.Actor, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Unauthorized("token has expired")
		}
		return nil, apperrors.TokenInvalid()
	}
	if !token.Valid {
		return nil, apperrors.TokenInvalid()
	}

	raw := claims.UserID
	if raw == "" {
		raw = claims.Subject
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, apperrors.TokenInvalid()
	}

	return &actor.Actor{
		ID:    id,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  claims.Role,
	}, nil
}
