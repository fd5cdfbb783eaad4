package security

import (
	"errors"
	"net/http"
	"strings"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"fxscheduler/src/auth"
)

var ErrEmptyToken = errors.New("token must not be empty")

// HashToken returns the bcrypt hash to put in ADMIN_TOKEN_HASH.
func HashToken(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrEmptyToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifyToken(hash, token string) bool {
	if hash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.Header.Get("X-Admin-Token")
}

// RequireAdmin rejects requests without a valid admin token and stores the
// operator in the request context.
func RequireAdmin(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.AdminTokenHash == "" {
				http.Error(w, "admin API disabled", http.StatusForbidden)
				return
			}
			if !VerifyToken(cfg.AdminTokenHash, bearerToken(r)) {
				logger.WithFields(map[string]interface{}{
					"path":   r.URL.Path,
					"remote": r.RemoteAddr,
				}).Warn("rejected admin request")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := auth.WithOperator(r.Context(), &auth.Operator{Name: cfg.AdminName})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
