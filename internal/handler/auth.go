package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
)

// APIKeyHeader carries admin keys.
const APIKeyHeader = "api_key"

var (
	errMissingToken = apperr.Unauthorized("missing_token", "bearer token required")
	errInvalidToken = apperr.Unauthorized("invalid_token", "invalid bearer token")
)

type userKey struct{}

func withUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// userFrom returns the authenticated customer. Routes behind requireUser
// always have one.
func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// TokenVerifier turns a bearer token into a user ID.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier accepts HS256 tokens signed with secret.
func NewTokenVerifier(secret []byte) *TokenVerifier {
	return &TokenVerifier{
		secret: secret,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Verify returns the token subject.
func (v *TokenVerifier) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", errors.Wrap(errInvalidToken, err.Error())
	}
	if claims.Subject == "" {
		return "", errors.Wrap(errInvalidToken, "token has no subject")
	}
	return claims.Subject, nil
}

// Sign issues a token for userID. Used by tests and local tooling.
func (v *TokenVerifier) Sign(userID string) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: userID})
	return t.SignedString(v.secret)
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// requireUser authenticates the customer and stores the user ID in the
// context.
func (h *Handler) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if token == "" {
			writeError(r.Context(), w, errMissingToken)
			return
		}
		userID, err := h.Tokens.Verify(token)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		ctx := zctx.With(withUser(r.Context(), userID), zap.String("user_id", userID))
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin checks the api_key header for the admin scope.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := h.Keys.Authenticate(r.Context(), r.Header.Get(APIKeyHeader), auth.ScopeAdmin)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		next(w, r.WithContext(zctx.With(r.Context(), zap.String("api_key", info.Name))))
	}
}
