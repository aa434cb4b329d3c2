package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dhawalhost/rowguard/pkg/permission"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	jose "gopkg.in/go-jose/go-jose.v2"
)

// ErrInvalidCredentials is returned for unknown users and wrong passwords
// alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("invalid token")

const (
	issuer   = "rowguard"
	tokenTTL = time.Hour
	keyID    = "rowguard-signing-key"
)

// Identity is the verified actor behind a bearer token. It exposes the
// token's principal tags for permission checks.
type Identity struct {
	ID         string
	Username   string
	principals []permission.Principal
}

// Principals returns the identity tags carried by the token.
func (i *Identity) Principals() []permission.Principal {
	return i.principals
}

// Claims is the JWT payload: registered claims plus the principal tags.
type Claims struct {
	Username   string   `json:"username,omitempty"`
	Principals []string `json:"principals,omitempty"`
	jwt.RegisteredClaims
}

// Service defines the token service operations.
type Service interface {
	// Login verifies the credentials and returns a signed bearer token
	// whose claims carry the user's principals.
	Login(ctx context.Context, username, password string) (string, error)
	// Verify parses and validates a bearer token.
	Verify(tokenString string) (*Identity, error)
	// JWKS exposes the public signing key set.
	JWKS() jose.JSONWebKeySet
}

type service struct {
	store      Store
	privateKey *rsa.PrivateKey
}

// NewService creates a new token service with a fresh signing key.
func NewService(store Store) (Service, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return &service{store: store, privateKey: privateKey}, nil
}

func (s *service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := Claims{
		Username:   user.Username,
		Principals: user.PrincipalTags,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *service) Verify(tokenString string) (*Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return &s.privateKey.PublicKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	principals := make([]permission.Principal, 0, len(claims.Principals))
	for _, p := range claims.Principals {
		principals = append(principals, permission.Principal(p))
	}
	return &Identity{
		ID:         claims.Subject,
		Username:   claims.Username,
		principals: principals,
	}, nil
}

func (s *service) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       &s.privateKey.PublicKey,
				KeyID:     keyID,
				Algorithm: "RS256",
				Use:       "sig",
			},
		},
	}
}
