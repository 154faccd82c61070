package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// Realm is announced in the WWW-Authenticate header of 401 responses.
const Realm = "MoMoAPI"

// Credentials is the single user allowed to call the API. Only a bcrypt
// hash of the password is kept in memory.
type Credentials struct {
	username     string
	passwordHash []byte
}

// NewCredentials hashes password with bcrypt.
func NewCredentials(username, password string) (*Credentials, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &Credentials{username: username, passwordHash: hash}, nil
}

// Valid reports whether username and password match.
func (c *Credentials) Valid(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(c.passwordHash, []byte(password)) == nil
	return userOK && passOK
}

// BasicAuth rejects requests without valid HTTP Basic credentials.
func BasicAuth(creds *Credentials) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok || !creds.Valid(username, password) {
				w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", Realm))
				WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
