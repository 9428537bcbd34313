package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/contextd/internal/errors"
)

// Role defines the access level of a caller.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleReadOnly Role = "readonly"
)

var roleLevel = map[Role]int{
	RoleReadOnly: 1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Mode      string          // "api-key", "jwt", "none"
	APIKey    string          // grants admin
	Roles     map[string]Role // extra api-key → role mapping
	JWTSecret string          // HS256 signing secret for "jwt" mode
	JWTIssuer string          // required iss claim when set
}

// Claims are the JWT claims the API reads.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

// NewAuthMiddleware returns a Fiber middleware that validates the
// Authorization header and stores the caller's Role in Locals("role").
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Mode == "none" {
			c.Locals("role", RoleAdmin)
			return c.Next()
		}

		path := c.Path()
		if isProbe(path) {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return problemResponse(c, fiber.StatusUnauthorized,
				"missing_auth", "Unauthorized",
				"Authorization header is required")
		}
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_auth_scheme", "Unauthorized",
				"Authorization header must use Bearer scheme")
		}

		if cfg.Mode == "jwt" {
			claims, err := ParseToken(cfg, token)
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Str("method", c.Method()).Msg("unauthorized request: invalid token")
				return problemResponse(c, fiber.StatusUnauthorized,
					"invalid_token", "Unauthorized",
					"Invalid or expired token")
			}
			c.Locals("role", roleFromClaim(claims.Role))
			c.Locals("subject", claims.Subject)
			return c.Next()
		}

		if cfg.APIKey != "" && keyMatches(token, cfg.APIKey) {
			c.Locals("role", RoleAdmin)
			return c.Next()
		}
		if role, ok := cfg.Roles[token]; ok {
			c.Locals("role", role)
			return c.Next()
		}

		logger.Warn().
			Str("path", path).
			Str("method", c.Method()).
			Msg("unauthorized request: invalid API key")

		return problemResponse(c, fiber.StatusUnauthorized,
			"invalid_api_key", "Unauthorized",
			"Invalid API key")
	}
}

// ParseToken verifies an HS256 bearer token against cfg.
func ParseToken(cfg AuthConfig, token string) (*Claims, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret not configured: %w", perrors.ErrAuthFailure)
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", perrors.ErrAuthFailure, err)
	}
	if !parsed.Valid {
		return nil, perrors.ErrAuthFailure
	}
	return claims, nil
}

// SignToken issues an HS256 token carrying role. Used by tooling and tests.
func SignToken(cfg AuthConfig, subject string, role Role, claims jwt.RegisteredClaims) (string, error) {
	if cfg.JWTSecret == "" {
		return "", errors.New("jwt secret not configured")
	}
	claims.Subject = subject
	if cfg.JWTIssuer != "" && claims.Issuer == "" {
		claims.Issuer = cfg.JWTIssuer
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: string(role), RegisteredClaims: claims})
	return t.SignedString([]byte(cfg.JWTSecret))
}

// roleFromClaim maps a token's role claim; unknown or missing roles read only.
func roleFromClaim(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleLevel[r]; ok {
		return r
	}
	return RoleReadOnly
}

// requireRole returns a middleware that enforces a minimum role level.
func requireRole(minRole Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(Role)
		if roleLevel[role] < roleLevel[minRole] {
			return problemResponse(c, fiber.StatusForbidden,
				"insufficient_role", "Forbidden",
				"Insufficient permissions for this operation")
		}
		return c.Next()
	}
}

// keyMatches compares an API key in constant time.
func keyMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
