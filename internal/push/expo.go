package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	ExpoPushURL    = "https://exp.host/--/api/v2/push/send"
	requestTimeout = 10 * time.Second
)

var errInvalidExpoToken = errors.New("not an expo push token")

// IsExpoToken reports whether token looks like an Expo push token.
func IsExpoToken(token string) bool {
	return strings.HasPrefix(token, "ExpoPushToken") || strings.HasPrefix(token, "ExponentPushToken")
}

// Expo delivers notifications to mobile devices through the Expo push API.
type Expo struct {
	url         string
	accessToken string
	client      *http.Client
}

// NewExpo builds a sender. An empty url uses the public Expo endpoint.
func NewExpo(url, accessToken string) *Expo {
	if url == "" {
		url = ExpoPushURL
	}
	return &Expo{
		url:         url,
		accessToken: accessToken,
		client:      &http.Client{Timeout: requestTimeout},
	}
}

type expoMessage struct {
	To    string         `json:"to"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
	Sound string         `json:"sound,omitempty"`
}

func (e *Expo) Send(ctx context.Context, token string, payload Payload) error {
	if !IsExpoToken(token) {
		return errInvalidExpoToken
	}

	body, err := json.Marshal(expoMessage{
		To:    token,
		Title: payload.Title,
		Body:  payload.Body,
		Data:  payload.Data,
		Sound: "default",
	})
	if err != nil {
		return fmt.Errorf("marshal expo message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create expo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.accessToken)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send expo push: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read expo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expo returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	// A single message yields a single ticket under "data".
	ticket := gjson.GetBytes(raw, "data")
	if ticket.IsArray() {
		ticket = ticket.Get("0")
	}
	if ticket.Get("status").String() != "error" {
		return nil
	}
	if ticket.Get("details.error").String() == "DeviceNotRegistered" {
		return ErrExpired
	}
	return fmt.Errorf("expo ticket error: %s", ticket.Get("message").String())
}
