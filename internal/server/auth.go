// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sigil-dev/aegis/internal/store"
)

// LocalUser is the caller when no bearer tokens are configured.
var LocalUser = store.User{ID: "local", Role: store.RolePrivileged}

type userContextKey struct{}

// UserFromContext returns the authenticated caller, or nil outside an
// authenticated request.
func UserFromContext(ctx context.Context) *store.User {
	u, _ := ctx.Value(userContextKey{}).(*store.User)
	return u
}

// WithUser attaches u to ctx.
func WithUser(ctx context.Context, u store.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, &u)
}

// publicPaths skip authentication.
var publicPaths = []string{"/health", "/openapi", "/docs", "/schemas"}

func isPublic(path string) bool {
	for _, p := range publicPaths {
		if path == p || strings.HasPrefix(path, p+".") || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

type tokenEntry struct {
	token []byte
	user  store.User
}

// authMiddleware maps "Authorization: Bearer <token>" onto a user. With no
// tokens configured every request runs as LocalUser.
func authMiddleware(tokens map[string]store.User) func(http.Handler) http.Handler {
	if len(tokens) == 0 {
		slog.Warn("no auth tokens configured, serving every request as the privileged local user")
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), LocalUser)))
			})
		}
	}

	entries := make([]tokenEntry, 0, len(tokens))
	for tok, u := range tokens {
		entries = append(entries, tokenEntry{token: []byte(tok), user: u})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			scheme, presented, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || presented == "" {
				writeError(w, apiError(http.StatusUnauthorized, CodeUnauthorized, "missing bearer token"))
				return
			}

			user, found := lookupToken(entries, []byte(strings.TrimSpace(presented)))
			if !found {
				slog.Warn("rejected request with unknown token", "path", r.URL.Path, "remote", r.RemoteAddr)
				writeError(w, apiError(http.StatusUnauthorized, CodeUnauthorized, "invalid bearer token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// lookupToken compares against every entry so timing does not reveal which
// prefix matched.
func lookupToken(entries []tokenEntry, presented []byte) (store.User, bool) {
	var (
		match store.User
		found bool
	)
	for _, e := range entries {
		if subtle.ConstantTimeCompare(e.token, presented) == 1 {
			match, found = e.user, true
		}
	}
	return match, found
}

// requireUser returns the caller or a 401 envelope.
func requireUser(ctx context.Context) (store.User, error) {
	u := UserFromContext(ctx)
	if u == nil {
		return store.User{}, apiError(http.StatusUnauthorized, CodeUnauthorized, "authentication required")
	}
	return *u, nil
}
