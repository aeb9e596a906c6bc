// Package identity resolves bearer tokens issued by Supabase Auth into the
// caller's user id and email.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/luckylove/server/internal/cache"
)

// ErrInvalidToken means the provider did not accept the token.
var ErrInvalidToken = errors.New("invalid token")

// MaxCacheTTL bounds how long a resolved identity is reused.
const MaxCacheTTL = 60 * time.Second

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Resolver turns a bearer token into a User.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*User, error)
}

type Config struct {
	URL       string
	AnonKey   string
	JWTSecret string
}

// Supabase verifies tokens locally with the project JWT secret when one is
// configured and falls back to the Auth REST API otherwise.
type Supabase struct {
	config Config
	client *http.Client
	cache  cache.Cache
	logger *slog.Logger
	now    func() time.Time
}

func NewSupabase(config Config, c cache.Cache, logger *slog.Logger) *Supabase {
	return &Supabase{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  c,
		logger: logger,
		now:    time.Now,
	}
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "identity:" + hex.EncodeToString(sum[:])
}

func (s *Supabase) Resolve(ctx context.Context, token string) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	key := cacheKey(token)
	if s.cache != nil {
		var u User
		ok, err := cache.GetJSON(ctx, s.cache, key, &u)
		if err != nil {
			s.logger.Warn("identity cache read failed", "error", err)
		} else if ok {
			return &u, nil
		}
	}

	var (
		user      *User
		expiresAt time.Time
		err       error
	)
	if s.config.JWTSecret != "" {
		user, expiresAt, err = s.verifyLocal(token)
		if err != nil {
			s.logger.Debug("local token verification failed, asking provider", "error", err)
		}
	}
	if user == nil {
		user, err = s.verifyRemote(ctx, token)
		if err != nil {
			return nil, err
		}
	}

	if s.cache != nil {
		ttl := MaxCacheTTL
		if !expiresAt.IsZero() {
			ttl = min(ttl, expiresAt.Sub(s.now()))
		}
		if err := cache.SetJSON(ctx, s.cache, key, user, ttl); err != nil {
			s.logger.Warn("identity cache write failed", "error", err)
		}
	}
	return user, nil
}

func (s *Supabase) verifyLocal(token string) (*User, time.Time, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("jwt parse: %w", err)
	}
	if !parsed.Valid {
		return nil, time.Time{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, time.Time{}, fmt.Errorf("jwt missing sub")
	}
	email, _ := claims["email"].(string)

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	return &User{ID: sub, Email: email}, expiresAt, nil
}

func (s *Supabase) verifyRemote(ctx context.Context, token string) (*User, error) {
	if s.config.URL == "" {
		return nil, ErrInvalidToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.config.URL, "/")+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if s.config.AnonKey != "" {
		req.Header.Set("apikey", s.config.AnonKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call auth provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, resp.Body)
		return nil, ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("auth provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode auth user: %w", err)
	}
	if u.ID == "" {
		return nil, ErrInvalidToken
	}
	return &u, nil
}

// IssueToken signs an HS256 access token in the provider's format. Used by
// the operator CLI to mint development tokens.
func IssueToken(secret, userID, email string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"role":  "authenticated",
		"aud":   "authenticated",
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
