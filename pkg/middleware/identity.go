package middleware

import (
	"context"
	"errors"
	"strings"

	"progression-engine/pkg/config"
	"progression-engine/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const UserIDHeader = "X-User-ID"

type userKey struct{}

var UserContextKey = userKey{}

// Claims is the token issued by the external identity provider. Only the
// subject is read.
type Claims struct {
	jwt.RegisteredClaims
}

// Identity resolves the caller from a bearer token signed with AUTH.JWT_SECRET,
// or from X-User-ID when the gateway in front is trusted to set it.
func Identity(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := resolveUser(cfg, c.GetHeader("Authorization"), c.GetHeader(UserIDHeader))
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, userID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), UserContextKey, userID))
		c.Next()
	}
}

const ContextUserKey = "user_id"

func resolveUser(cfg *config.Config, authorization, header string) (string, error) {
	if authorization != "" {
		parts := strings.SplitN(authorization, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", errutil.Unauthorized("invalid authorization header format", nil)
		}
		return ParseToken(cfg.Auth.JWTSecret, strings.TrimSpace(parts[1]))
	}

	if cfg.Auth.TrustUserHeader && strings.TrimSpace(header) != "" {
		return strings.TrimSpace(header), nil
	}

	return "", errutil.Unauthorized("missing authenticated user", nil)
}

// ParseToken validates an HS256 token and returns its subject.
func ParseToken(secret, token string) (string, error) {
	if secret == "" {
		return "", errutil.Unauthorized("bearer tokens are not accepted", nil)
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", errutil.Unauthorized("invalid token", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", errutil.Unauthorized("invalid token claims", nil)
	}
	return claims.Subject, nil
}

// UserID returns the caller resolved by Identity.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserKey)
}

// IdentityInterceptor resolves the caller for gRPC from the authorization or
// x-user-id metadata.
func IdentityInterceptor(cfg *config.Config) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return handler(ctx, req)
		}

		userID, err := resolveUser(cfg, first(md.Get("authorization")), first(md.Get("x-user-id")))
		if err != nil {
			// health probes run unauthenticated
			return handler(ctx, req)
		}

		return handler(context.WithValue(ctx, UserContextKey, userID), req)
	}
}

// FromContext returns the caller stored by Identity or IdentityInterceptor.
func FromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(UserContextKey).(string)
	return v, ok && v != ""
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}
