package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ruteri/casper-member-portal/interfaces"
)

type contextKey string

const (
	contextKeyAccountID = contextKey("accountID")
	contextKeyTokenID   = contextKey("tokenID")
)

var errUnauthorized = errors.New("unauthorized")

// JWTAccountResolver authenticates requests carrying an HS256 bearer token
// whose subject is the account id.
type JWTAccountResolver struct {
	secret  []byte
	revoked interfaces.TokenRevocationList
	now     interfaces.Clock
	log     *slog.Logger
}

// NewJWTAccountResolver creates a resolver. A nil revocation list accepts every
// unexpired token.
func NewJWTAccountResolver(secret []byte, revoked interfaces.TokenRevocationList, log *slog.Logger) *JWTAccountResolver {
	return &JWTAccountResolver{secret: secret, revoked: revoked, now: time.Now, log: log}
}

// IssueToken signs a bearer token for accountID valid for ttl.
func (r *JWTAccountResolver) IssueToken(accountID interfaces.AccountID, ttl time.Duration) (string, error) {
	now := r.now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID.String(),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

// Resolve returns the account id and token id of a valid, unrevoked token.
func (r *JWTAccountResolver) Resolve(ctx context.Context, raw string) (interfaces.AccountID, string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %v", errUnauthorized, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: invalid subject", errUnauthorized)
	}
	if claims.ID == "" {
		return uuid.Nil, "", fmt.Errorf("%w: missing token id", errUnauthorized)
	}

	if r.revoked != nil {
		revoked, err := r.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return uuid.Nil, "", fmt.Errorf("%w: revocation check failed: %v", interfaces.ErrPersistence, err)
		}
		if revoked {
			return uuid.Nil, "", fmt.Errorf("%w: token revoked", errUnauthorized)
		}
	}
	return id, claims.ID, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// resolved account in the request context.
func (r *JWTAccountResolver) Middleware(debugErrors bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			h := req.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				writeError(w, r.log, debugErrors, fmt.Errorf("%w: missing Authorization header", errUnauthorized))
				return
			}

			id, tokenID, err := r.Resolve(req.Context(), strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				writeError(w, r.log, debugErrors, err)
				return
			}

			ctx := context.WithValue(req.Context(), contextKeyAccountID, id)
			ctx = context.WithValue(ctx, contextKeyTokenID, tokenID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func accountFromContext(ctx context.Context) (interfaces.AccountID, bool) {
	id, ok := ctx.Value(contextKeyAccountID).(interfaces.AccountID)
	return id, ok
}

func tokenIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyTokenID).(string)
	return id
}
