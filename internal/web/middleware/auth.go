package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const subjectContextKey contextKey = "subject"

var (
	// ErrNoToken means the request carries no bearer token.
	ErrNoToken = errors.New("missing bearer token")
	// ErrAuthDisabled means no signing secret is configured.
	ErrAuthDisabled = errors.New("authentication is not configured")
)

// Authenticator validates HMAC-signed bearer tokens and extracts the subject.
type Authenticator struct {
	secret []byte
	issuer string
	logger *zap.Logger
}

// NewAuthenticator creates an authenticator. With an empty secret every token
// is rejected, so recall and profiles are unavailable.
func NewAuthenticator(secret, issuer string, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, logger: logger}
}

// Subject validates the request's bearer token and returns its sub claim.
func (a *Authenticator) Subject(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrNoToken
	}
	tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if tokenStr == "" {
		return "", ErrNoToken
	}
	if len(a.secret) == 0 {
		return "", ErrAuthDisabled
	}

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwtlib.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.issuer))
	}

	token, err := jwtlib.Parse(tokenStr, func(*jwtlib.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("invalid JWT: %w", err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("JWT missing sub claim")
	}
	return subject, nil
}

// RequireAuth is middleware that requires a valid bearer token.
func RequireAuth(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := a.Subject(r)
			if err != nil {
				code := "invalid_token"
				if errors.Is(err, ErrNoToken) {
					code = "unauthorized"
				}
				a.logger.Debug("rejected request", zap.String("path", r.URL.Path), zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprintf(w, `{"error":%q}`, code)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetSubjectInContext(r.Context(), subject)))
		})
	}
}

// OptionalAuth is middleware that attaches the subject when a valid token is
// present. Requests without a token, or with an invalid one, stay anonymous.
func OptionalAuth(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := a.Subject(r)
			if err != nil {
				if !errors.Is(err, ErrNoToken) {
					a.logger.Debug("ignoring invalid token", zap.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetSubjectInContext(r.Context(), subject)))
		})
	}
}

// GetSubjectFromContext returns the authenticated subject, or "" if anonymous.
func GetSubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectContextKey).(string)
	return subject
}

// SetSubjectInContext adds a subject to the context.
// This is primarily for testing - use the auth middleware in production.
func SetSubjectInContext(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectContextKey, subject)
}
