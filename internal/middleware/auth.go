package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/luckylove/server/internal/auth"
	"github.com/luckylove/server/internal/identity"
	"github.com/luckylove/server/internal/model"
)

type ProfileGetter interface {
	GetByUserID(ctx context.Context, userID string) (*model.Profile, error)
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter browsers must use for WebSocket upgrades.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// resolveCaller authenticates the request, writing the error response and
// returning nil when it fails.
func resolveCaller(w http.ResponseWriter, r *http.Request, resolver identity.Resolver, logger *slog.Logger) *identity.User {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Token requerido.")
		return nil
	}

	user, err := resolver.Resolve(r.Context(), token)
	if errors.Is(err, identity.ErrInvalidToken) {
		writeError(w, http.StatusUnauthorized, "Token invalido.")
		return nil
	}
	if err != nil {
		logger.Error("resolve identity", "error", err)
		writeError(w, http.StatusBadGateway, "No se pudo validar el token.")
		return nil
	}
	return user
}

// RequireIdentity authenticates the caller without requiring a profile.
// It guards profile registration, the one route a new account can reach.
func RequireIdentity(resolver identity.Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := resolveCaller(w, r, resolver, logger)
			if user == nil {
				return
			}
			ac := auth.AuthContext{UserID: user.ID, Email: user.Email}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireAuth resolves the bearer token and the caller's profile and
// populates AuthContext.
func RequireAuth(resolver identity.Resolver, profiles ProfileGetter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := resolveCaller(w, r, resolver, logger)
			if user == nil {
				return
			}

			profile, err := profiles.GetByUserID(r.Context(), user.ID)
			if err != nil {
				logger.Error("load profile", "user_id", user.ID, "error", err)
				writeError(w, http.StatusInternalServerError, "No se pudo cargar el perfil.")
				return
			}
			if profile == nil {
				writeError(w, http.StatusUnauthorized, "Perfil no encontrado.")
				return
			}

			ac := auth.AuthContext{UserID: user.ID, Email: user.Email}
			if profile.CoupleID != nil {
				ac.CoupleID = *profile.CoupleID
			}
			if ac.Email == "" {
				ac.Email = profile.Email
			}

			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireCouple rejects callers who have not joined a couple.
func RequireCouple(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.InCouple(r.Context()) {
			writeError(w, http.StatusConflict, "Usuario sin pareja.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
