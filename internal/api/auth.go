package api

import (
	"context"
	"log/slog"
	"net/http"

	"ingest-backend/internal/database"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type userContextKey struct{}

// Compared against on the unknown-user path so both failure paths cost one
// bcrypt comparison and response timing does not reveal which usernames
// exist.
var unknownUserHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// BasicAuth authenticates requests against the users table.
func BasicAuth(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				unauthorized(w)
				return
			}

			var user database.User
			if err := db.Where("username = ?", username).First(&user).Error; err != nil {
				bcrypt.CompareHashAndPassword(unknownUserHash, []byte(password)) //nolint:errcheck
				unauthorized(w)
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
				slog.Info("rejected login attempt", "username", username)
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="restricted"`)
	http.Error(w, "invalid credentials", http.StatusUnauthorized)
}

func UserFromContext(ctx context.Context) (database.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(database.User)
	return user, ok
}
