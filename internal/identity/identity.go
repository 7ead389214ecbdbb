// Package identity carries the validated actor identity of a request. The
// session components never parse credentials; they read the identity placed
// in the context by Middleware.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrNoCredentials is returned by a Resolver when the request carries none.
	ErrNoCredentials = errors.New("no credentials")
	// ErrInvalidCredentials is returned by a Resolver when the credentials do not verify.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Identity is a validated actor.
type Identity struct {
	UID string
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UID != ""
}

// Resolver extracts and validates the identity of a request.
type Resolver interface {
	Resolve(r *http.Request) (Identity, error)
}

// HeaderResolver trusts the X-Tepache-Uid header. Development use only.
type HeaderResolver struct{}

// HeaderUID is the header read by HeaderResolver.
const HeaderUID = "X-Tepache-Uid"

// Resolve implements Resolver.
func (HeaderResolver) Resolve(r *http.Request) (Identity, error) {
	uid := strings.TrimSpace(r.Header.Get(HeaderUID))
	if uid == "" {
		return Identity{}, ErrNoCredentials
	}
	return Identity{UID: uid}, nil
}

// Middleware attaches the resolved identity to each request's context.
// Requests without credentials pass through anonymously; requests whose
// credentials fail to verify are rejected with 401.
//
// Precondition: resolver and logger must be non-nil.
func Middleware(resolver Resolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolver.Resolve(r)
			switch {
			case err == nil:
				r = r.WithContext(WithIdentity(r.Context(), id))
			case errors.Is(err, ErrNoCredentials):
			default:
				logger.Debug("rejecting credentials", zap.String("path", r.URL.Path), zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"Unauthorized"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
