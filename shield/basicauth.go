package shield

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// BasicAuthConfig holds one user and the bcrypt hash of their password.
// An empty User disables the check.
type BasicAuthConfig struct {
	User         string `yaml:"user"`
	PasswordHash string `yaml:"password_hash"`
	Realm        string `yaml:"realm"`
}

// Enabled reports whether credentials are configured.
func (c BasicAuthConfig) Enabled() bool { return c.User != "" }

// Validate checks that the configured hash is a usable bcrypt hash.
func (c BasicAuthConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if _, err := bcrypt.Cost([]byte(c.PasswordHash)); err != nil {
		return fmt.Errorf("basic auth password_hash: %w", err)
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for BasicAuthConfig.PasswordHash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// BasicAuth returns middleware that rejects requests without the configured
// credentials with 401 and a WWW-Authenticate challenge. When cfg is not
// enabled the middleware is a pass-through.
func BasicAuth(cfg BasicAuthConfig) func(http.Handler) http.Handler {
	realm := cfg.Realm
	if realm == "" {
		realm = "docprompt"
	}
	hash := []byte(cfg.PasswordHash)
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.User)) == 1
			// bcrypt runs even when the user does not match.
			passOK := bcrypt.CompareHashAndPassword(hash, []byte(pass)) == nil
			if !ok || !userOK || !passOK {
				GetLogger(r.Context()).Warn("basic auth rejected", "user", user)
				w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`", charset="UTF-8"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
