package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/utils"
)

// UserHeader carries the caller identity when bearer tokens are disabled
const UserHeader = "X-User-ID"

// Identity resolves the caller of a request. With a secret it requires an
// HS256 bearer token whose subject is the user. Without one it trusts the
// X-User-ID header set by an upstream gateway.
type Identity struct {
	secret []byte
	logger *zap.Logger
}

// NewIdentity creates the identity middleware
func NewIdentity(secret string, logger *zap.Logger) *Identity {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Identity{logger: logger}
	if secret != "" {
		i.secret = []byte(secret)
	}
	return i
}

// TokensEnabled reports whether bearer tokens are required
func (i *Identity) TokensEnabled() bool {
	return len(i.secret) > 0
}

// Resolve stores the caller's user id in the request context or rejects
// the request with 401
func (i *Identity) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		userID, err := i.userID(r)
		if err != nil {
			i.logger.Warn("caller identity rejected",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Missing or invalid caller identity")
			return
		}

		i.logger.Debug("caller identified",
			zap.String("request_id", requestID),
			zap.String("user_id", userID))

		next.ServeHTTP(w, r.WithContext(WithUserID(ctx, userID)))
	})
}

func (i *Identity) userID(r *http.Request) (string, error) {
	if !i.TokensEnabled() {
		user := strings.TrimSpace(r.Header.Get(UserHeader))
		if user == "" {
			return "", fmt.Errorf("missing %s header", UserHeader)
		}
		return user, nil
	}

	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", errors.New("missing bearer token")
	}

	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), &jwt.RegisteredClaims{},
		func(*jwt.Token) (interface{}, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}
