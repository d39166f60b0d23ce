package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/go-chi/cors"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const ContextAdminKey contextKey = "admin"

// AdminFromContext returns the authenticated admin user name.
func AdminFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(ContextAdminKey).(string)
	return user, ok
}

var ErrBadCredentials = errors.New("bad credentials")

// CredentialChecker verifies admin credentials.
type CredentialChecker interface {
	CheckAdmin(user, password string) error
}

// BcryptChecker accepts a single admin whose password is stored as a bcrypt
// hash.
type BcryptChecker struct {
	User         string
	PasswordHash string
}

func (c BcryptChecker) CheckAdmin(user, password string) error {
	if c.User == "" || c.PasswordHash == "" {
		return ErrBadCredentials
	}
	if subtle.ConstantTimeCompare([]byte(user), []byte(c.User)) != 1 {
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// AdminMiddleware guards the reports with HTTP basic auth.
func AdminMiddleware(checker CredentialChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="geocode reports"`)
				http.Error(w, "Unauthorized: missing credentials", http.StatusUnauthorized)
				return
			}

			if err := checker.CheckAdmin(user, password); err != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="geocode reports"`)
				http.Error(w, "Unauthorized: bad credentials", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextAdminKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CORSMiddleware allows the listed origins to call the read-only lookup API.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	})
}
