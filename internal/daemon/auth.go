package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const authTokenHeader = "X-Photostore-Token"

// tokenSet holds the accepted access tokens. Several tokens may be live
// at once so that clients can be moved to a new token before the old one
// is retired.
type tokenSet [][]byte

func parseTokenSet(raw string) tokenSet {
	var set tokenSet
	for _, part := range strings.Split(raw, ",") {
		if token := strings.TrimSpace(part); token != "" {
			set = append(set, []byte(token))
		}
	}
	return set
}

// allows reports whether candidate is one of the tokens. Every entry is
// compared so timing does not reveal which token matched.
func (s tokenSet) allows(candidate string) bool {
	if candidate == "" {
		return false
	}
	matched := 0
	for _, token := range s {
		matched |= subtle.ConstantTimeCompare(token, []byte(candidate))
	}
	return matched == 1
}

// requestToken reads the caller's token from X-Photostore-Token, falling
// back to an Authorization bearer credential.
func requestToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(authTokenHeader)); token != "" {
		return token
	}
	scheme, credential, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(credential)
}

// requireToken guards routes that can change the store: writes, and
// anything that provisions a container on the way. With no tokens
// configured every request passes.
func (d *Daemon) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !d.authorized(r) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="photostored"`)
			d.writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		next(w, r)
	}
}

func (d *Daemon) authorized(r *http.Request) bool {
	d.mu.Lock()
	tokens := d.tokens
	d.mu.Unlock()

	if len(tokens) == 0 {
		return true
	}
	return tokens.allows(requestToken(r))
}
