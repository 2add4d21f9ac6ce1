package mw

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"hotel-stays-backend/internal/reservation"
)

const actorKey = "stays.actor"

// Claims is the bearer token body issued by the identity provider.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

const accessTokenParam = "access_token"

// Auth verifies an HS256 bearer token and stores the caller as a
// reservation.Actor. EventSource clients cannot set headers, so the token
// is also accepted in the access_token query parameter.
func Auth(secret []byte, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		var claims Claims
		_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		actor, err := actorFromClaims(claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query(accessTokenParam)
}

func actorFromClaims(claims Claims) (reservation.Actor, error) {
	if claims.Subject == "" {
		return reservation.Actor{}, errors.New("token has no subject")
	}
	role := reservation.Role(claims.Role)
	switch role {
	case reservation.RoleGuest, reservation.RoleOwner, reservation.RoleAdmin:
	case "":
		role = reservation.RoleGuest
	default:
		return reservation.Actor{}, errors.New("unknown role " + claims.Role)
	}
	return reservation.Actor{UserID: claims.Subject, Role: role}, nil
}

// ActorFrom returns the caller stored by Auth.
func ActorFrom(c *gin.Context) (reservation.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return reservation.Actor{}, false
	}
	actor, ok := v.(reservation.Actor)
	return actor, ok
}

// SignToken issues a token that Auth accepts. ttl of zero means no expiry.
func SignToken(secret []byte, issuer, userID string, role reservation.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
