package server

import (
	"net/http"

	subscriptiondomain "github.com/astralhq/oraculum/internal/subscription/domain"
	"github.com/astralhq/oraculum/internal/userctx"
	"github.com/gin-gonic/gin"
)

func (s *Server) GetMySubscription(c *gin.Context) {
	userID, ok := userctx.UserIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.subscriptionSvc.Get(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UpsertSubscription is registered outside production only.
func (s *Server) UpsertSubscription(c *gin.Context) {
	var req subscriptiondomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	resp, err := s.subscriptionSvc.Upsert(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
