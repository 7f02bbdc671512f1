package auth

import (
	"crypto/rsa"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/pkg/middleware"
)

// Supported signing algorithms.
const (
	AlgorithmHS256 = "HS256"
	AlgorithmRS256 = "RS256"
)

// Claims represents the JWT claims of an access token issued by the user service.
type Claims struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IsVerified bool   `json:"is_verified"`
	jwt.RegisteredClaims
}

// Config selects how access tokens are verified.
type Config struct {
	Algorithm     string
	Secret        string
	PublicKeyFile string
	PublicKeyPEM  []byte
	Issuer        string
	Audience      string
}

// Verifier validates bearer tokens.
type Verifier struct {
	key    any
	parser *jwt.Parser
}

// NewVerifier builds a Verifier for cfg. RS256 keys come from PublicKeyPEM,
// or are read from PublicKeyFile when no PEM is given.
func NewVerifier(cfg Config) (*Verifier, error) {
	var key any
	switch cfg.Algorithm {
	case AlgorithmHS256, "":
		if cfg.Secret == "" {
			return nil, fmt.Errorf("jwt: HS256 requires a secret")
		}
		cfg.Algorithm = AlgorithmHS256
		key = []byte(cfg.Secret)
	case AlgorithmRS256:
		pemBytes := cfg.PublicKeyPEM
		if len(pemBytes) == 0 {
			if cfg.PublicKeyFile == "" {
				return nil, fmt.Errorf("jwt: RS256 requires a public key")
			}
			b, err := os.ReadFile(cfg.PublicKeyFile)
			if err != nil {
				return nil, fmt.Errorf("jwt: read public key: %w", err)
			}
			pemBytes = b
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("jwt: parse public key: %w", err)
		}
		key = pub
	default:
		return nil, fmt.Errorf("jwt: unsupported algorithm %q", cfg.Algorithm)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{cfg.Algorithm})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{key: key, parser: jwt.NewParser(opts...)}, nil
}

// Validate parses and verifies a token. Unknown roles are downgraded to guest.
func (v *Verifier) Validate(tokenString string) (*middleware.Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("invalid access token claims")
	}

	return &middleware.Claims{
		UserID:     claims.UserID,
		Email:      claims.Email,
		Role:       domain.ParseRole(claims.Role),
		IsVerified: claims.IsVerified,
	}, nil
}

// PublicKey returns the RSA key used for verification, or nil for HS256.
func (v *Verifier) PublicKey() *rsa.PublicKey {
	k, _ := v.key.(*rsa.PublicKey)
	return k
}
