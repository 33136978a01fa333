package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/crmdesk/internal/auth"
	"github.com/dukerupert/crmdesk/internal/model"
)

// APIKeyVerifier resolves a plaintext API key.
type APIKeyVerifier interface {
	Verify(token string) (*model.APIKey, error)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="crmdesk"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// RequireCronSecret checks the Authorization header against the cron
// secret. An empty secret leaves the endpoint open.
func RequireCronSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		want := []byte("Bearer " + secret)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				unauthorized(w, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin accepts either a service JWT carrying the admin role or a
// stored API key, and populates AuthContext.
func RequireAdmin(issuer *auth.Issuer, keys APIKeyVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w, "Unauthorized")
				return
			}

			var ac auth.AuthContext
			if strings.Count(token, ".") == 2 {
				claims, err := issuer.Parse(token)
				if err != nil {
					unauthorized(w, "Invalid token")
					return
				}
				ac = auth.AuthContext{Subject: claims.Subject, Role: claims.Role, Method: auth.MethodJWT}
			} else {
				key, err := keys.Verify(token)
				if err != nil || key == nil {
					unauthorized(w, "Invalid API key")
					return
				}
				ac = auth.AuthContext{Subject: "apikey:" + key.Name, Role: auth.RoleAdmin, Method: auth.MethodAPIKey, APIKeyID: key.ID}
			}

			if ac.Role != auth.RoleAdmin {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]string{"error": "Forbidden"})
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}
