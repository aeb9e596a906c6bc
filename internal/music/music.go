// Package music searches the Spotify catalog with an app-level
// client-credentials token.
package music

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/luckylove/server/internal/cache"
)

const (
	tokenCacheKey = "spotify:app-token"
	searchLimit   = 10
	// Tokens are refreshed this long before Spotify says they expire.
	tokenSkew = 30 * time.Second
)

var (
	ErrNotConfigured = errors.New("spotify credentials not configured")
	ErrEmptyQuery    = errors.New("empty search query")
)

type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
}

// Track is the subset of a Spotify track the app displays.
type Track struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Artist     string  `json:"artist"`
	Image      *string `json:"image"`
	PreviewURL *string `json:"previewUrl"`
}

type Service struct {
	config   Config
	client   *http.Client
	tokenURL string
	apiURL   string
	cache    cache.Cache
	logger   *slog.Logger
}

func NewService(cfg Config, c cache.Cache, logger *slog.Logger) *Service {
	return &Service{
		config:   cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		tokenURL: "https://accounts.spotify.com/api/token",
		apiURL:   "https://api.spotify.com/v1",
		cache:    c,
		logger:   logger,
	}
}

func (s *Service) Configured() bool {
	return s.config.ClientID != "" && s.config.ClientSecret != ""
}

// Search returns up to ten tracks matching q.
func (s *Service) Search(ctx context.Context, q string) ([]Track, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	params := url.Values{
		"q":     {q},
		"type":  {"track"},
		"limit": {fmt.Sprint(searchLimit)},
	}
	if s.config.Market != "" {
		params.Set("market", s.config.Market)
	}

	body, err := s.get(ctx, "/search?"+params.Encode())
	if err != nil {
		return nil, err
	}

	items := gjson.GetBytes(body, "tracks.items").Array()
	tracks := make([]Track, 0, len(items))
	for _, item := range items {
		tracks = append(tracks, parseTrack(item))
	}
	return tracks, nil
}

// Track fetches a single track by id. A missing track yields nil.
func (s *Service) Track(ctx context.Context, id string) (*Track, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	body, err := s.get(ctx, "/tracks/"+url.PathEscape(id))
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := parseTrack(gjson.ParseBytes(body))
	return &t, nil
}

func parseTrack(item gjson.Result) Track {
	var artists []string
	for _, a := range item.Get("artists.#.name").Array() {
		artists = append(artists, a.String())
	}
	t := Track{
		ID:     item.Get("id").String(),
		Name:   item.Get("name").String(),
		Artist: strings.Join(artists, ", "),
	}
	if img := item.Get("album.images.0.url"); img.Exists() {
		v := img.String()
		t.Image = &v
	}
	if p := item.Get("preview_url"); p.Exists() && p.Type != gjson.Null {
		v := p.String()
		t.PreviewURL = &v
	}
	return t
}

var errNotFound = errors.New("spotify resource not found")

func (s *Service) get(ctx context.Context, path string) ([]byte, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create spotify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spotify request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read spotify response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		// Token revoked early; the next call fetches a fresh one.
		if err := s.cache.Delete(ctx, tokenCacheKey); err != nil {
			s.logger.Warn("drop spotify token", "error", err)
		}
		return nil, errors.New("spotify rejected token")
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("spotify returned status %d: %s", resp.StatusCode, gjson.GetBytes(body, "error.message").String())
	}
	return body, nil
}

func (s *Service) accessToken(ctx context.Context) (string, error) {
	cached, ok, err := s.cache.Get(ctx, tokenCacheKey)
	if err != nil {
		s.logger.Warn("read cached spotify token", "error", err)
	}
	if ok {
		return string(cached), nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(s.config.ClientID, s.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("spotify token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("spotify token endpoint returned %d: %s", resp.StatusCode, gjson.GetBytes(body, "error").String())
	}

	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return "", errors.New("spotify token response missing access_token")
	}
	expiresIn := gjson.GetBytes(body, "expires_in").Int()
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	ttl := time.Duration(expiresIn)*time.Second - tokenSkew
	if ttl > 0 {
		if err := s.cache.Set(ctx, tokenCacheKey, []byte(token), ttl); err != nil {
			s.logger.Warn("cache spotify token", "error", err)
		}
	}
	return token, nil
}
