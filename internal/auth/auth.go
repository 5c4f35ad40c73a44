// Package auth verifies access tokens issued by the hosted identity platform.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"sos-service/internal/models"
)

const userKey = "auth_user"

var ErrInvalidToken = errors.New("invalid token")

// Claims is the platform access token body. Subject carries the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks an HS256 token and returns the user it was issued to.
func (v *Verifier) Verify(tokenString string) (models.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return models.User{}, ErrInvalidToken
	}
	return models.User{ID: claims.Subject, Email: claims.Email}, nil
}

// Issue signs a token for user the way the identity platform does.
func (v *Verifier) Issue(user models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware attaches the verified user to the request. Requests without a valid
// token pass through anonymously; handlers decide what that means.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}
		if user, err := v.Verify(token); err == nil {
			c.Set(userKey, user)
		}
		c.Next()
	}
}

// User returns the user attached by Middleware.
func User(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return models.User{}, false
	}
	u, ok := v.(models.User)
	return u, ok
}

// bearerToken reads the Authorization header, or access_token for WebSocket upgrades
// where browsers cannot set headers.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if t := strings.TrimPrefix(h, "Bearer "); t != h {
			return strings.TrimSpace(t)
		}
		return ""
	}
	return c.Query("access_token")
}
