package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/response"
)

const (
	// ContextKeyUserID holds the authenticated operator id
	ContextKeyUserID = "user_id"
	// ContextKeyRole holds the operator's role claim
	ContextKeyRole = "role"
	// UserIDHeader is set by the API gateway after it validated the token
	UserIDHeader = "X-User-ID"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// JWTConfig configures operator identity extraction
type JWTConfig struct {
	Secret string
	Issuer string
	// TrustGatewayHeader accepts X-User-ID when no bearer token is present.
	// Only enable behind the gateway.
	TrustGatewayHeader bool
}

// OperatorClaims mirrors the access token issued by the auth service
type OperatorClaims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// ParseOperatorToken validates an HS256 access token and returns its claims
func ParseOperatorToken(tokenString string, cfg *JWTConfig) (*OperatorClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &OperatorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// JWTMiddleware resolves the operator identity and stores it in the gin context
func JWTMiddleware(cfg *JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if cfg.TrustGatewayHeader {
				if userID := c.GetHeader(UserIDHeader); userID != "" {
					c.Set(ContextKeyUserID, userID)
					c.Next()
					return
				}
			}
			response.Unauthorized(c, ErrMissingToken.Error())
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			response.Unauthorized(c, ErrMissingToken.Error())
			return
		}

		claims, err := ParseOperatorToken(tokenString, cfg)
		if err != nil {
			response.Unauthorized(c, err.Error())
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}

// GetUserID returns the operator id set by JWTMiddleware
func GetUserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextKeyUserID)
	return id, id != ""
}
