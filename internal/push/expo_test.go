package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExpoSend(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response string
		wantErr  error
		anyErr   bool
	}{
		{"ok ticket", http.StatusOK, `{"data":{"status":"ok","id":"t-1"}}`, nil, false},
		{"ok ticket list", http.StatusOK, `{"data":[{"status":"ok","id":"t-1"}]}`, nil, false},
		{"device gone", http.StatusOK, `{"data":{"status":"error","message":"gone","details":{"error":"DeviceNotRegistered"}}}`, ErrExpired, true},
		{"ticket error", http.StatusOK, `{"data":{"status":"error","message":"MessageTooBig"}}`, nil, true},
		{"server error", http.StatusInternalServerError, `oops`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got expoMessage
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer expo-secret" {
					t.Errorf("authorization = %q", r.Header.Get("Authorization"))
				}
				if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
					t.Errorf("decode request: %v", err)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			sender := NewExpo(srv.URL, "expo-secret")
			err := sender.Send(context.Background(), "ExponentPushToken[abc]", Payload{
				Title: "Nuevo reto",
				Body:  "Tu pareja creo el reto: Cocinar.",
				Data:  map[string]any{"type": "challenge"},
			})

			if (err != nil) != tt.anyErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.anyErr)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if got.To != "ExponentPushToken[abc]" || got.Title != "Nuevo reto" {
				t.Errorf("request = %+v", got)
			}
		})
	}
}

func TestExpoSendRejectsForeignToken(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	if err := NewExpo(srv.URL, "").Send(context.Background(), "not-a-token", Payload{}); err == nil {
		t.Error("expected error for non-expo token")
	}
	if called {
		t.Error("provider should not be contacted")
	}
}
