package server

import (
	"strings"

	"github.com/astralhq/oraculum/internal/userctx"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthRequired verifies the bearer token and installs the user identity
// on the request context. Every gated route sits behind it.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := s.authenticate(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := userctx.WithUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) authenticate(c *gin.Context) (snowflake.ID, error) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return 0, ErrUnauthorized
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return 0, ErrUnauthorized
	}

	token, err := jwt.Parse(strings.TrimSpace(parts[1]), func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.AuthJWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return 0, ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrUnauthorized
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return 0, ErrUnauthorized
	}

	userID, err := snowflake.ParseString(subject)
	if err != nil || userID == 0 {
		return 0, ErrUnauthorized
	}
	return userID, nil
}
