package domain

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"example.com/gymlog/internal/observability"
)

// DefaultTokenTTL is the lifetime of an issued bearer token.
const DefaultTokenTTL = 900 * time.Second

const tokenBytes = 32

// Gateway authenticates users and issues bearer tokens.
type Gateway struct {
	users  UserRepository
	ttl    time.Duration
	cost   int
	now    func() time.Time
	random io.Reader
}

// GatewayOption configures optional Gateway behaviour.
type GatewayOption func(*Gateway)

// WithTokenTTL overrides DefaultTokenTTL.
func WithTokenTTL(ttl time.Duration) GatewayOption {
	return func(g *Gateway) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) GatewayOption {
	return func(g *Gateway) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			g.cost = cost
		}
	}
}

// WithClock replaces the wall clock used for token expiry.
func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) {
		g.now = now
	}
}

// NewGateway constructs a Gateway over the credential store.
func NewGateway(users UserRepository, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		users:  users,
		ttl:    DefaultTokenTTL,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register creates a user with a bcrypt hash of password.
func (g *Gateway) Register(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &ValidationError{Field: "username", Message: "username must not be empty"}
	}
	hash, err := g.hash(password)
	if err != nil {
		return nil, err
	}
	return g.users.CreateUser(ctx, username, hash)
}

// VerifyBasic reports whether password matches the stored hash for username.
// Usernames are trimmed as on registration. Unknown users verify as false.
func (g *Gateway) VerifyBasic(ctx context.Context, username, password string) (bool, error) {
	user, err := g.users.FindUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil, nil
}

// IssueToken generates a new bearer token for username, replacing any previous one.
func (g *Gateway) IssueToken(ctx context.Context, username string) (Token, error) {
	user, err := g.users.FindUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return Token{}, err
	}
	if user == nil {
		return Token{}, ErrBadCredentials
	}

	raw := make([]byte, tokenBytes)
	if _, err := io.ReadFull(g.random, raw); err != nil {
		return Token{}, fmt.Errorf("generate token: %w", err)
	}
	token := Token{
		Value:     base64.RawURLEncoding.EncodeToString(raw),
		// Stores keep microsecond precision; the caller sees the enforced instant.
		ExpiresAt: g.now().Add(g.ttl).UTC().Truncate(time.Microsecond),
	}
	if err := g.users.SaveToken(ctx, user.ID, TokenDigest(token.Value), token.ExpiresAt); err != nil {
		return Token{}, err
	}
	observability.RecordTokenIssued()
	return token, nil
}

// VerifyBearer resolves the user holding token. A token is expired from the
// instant of its expiry onwards.
func (g *Gateway) VerifyBearer(ctx context.Context, token string) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnknownToken
	}
	user, err := g.users.FindUserByTokenDigest(ctx, TokenDigest(token))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnknownToken
	}
	if user.TokenExpiry == nil || !g.now().Before(*user.TokenExpiry) {
		return nil, ErrTokenExpired
	}
	return user, nil
}

// ResetPassword replaces the password of username and revokes its token.
func (g *Gateway) ResetPassword(ctx context.Context, username, password string) error {
	user, err := g.users.FindUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	hash, err := g.hash(password)
	if err != nil {
		return err
	}
	return g.users.UpdatePassword(ctx, user.ID, hash)
}

func (g *Gateway) hash(password string) (string, error) {
	if password == "" {
		return "", &ValidationError{Field: "password", Message: "password must not be empty"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", &ValidationError{Field: "password", Message: "password must be at most 72 bytes"}
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// TokenDigest is the stored form of a bearer token.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
