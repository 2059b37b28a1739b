package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xhad/ragcore/internal/models"
	"github.com/xhad/ragcore/pkg/stream"
)

const (
	ctxUserID = "userID"
	ctxOrgID  = "orgID"
)

// identity reads the caller identity that the upstream auth layer attached
// to the request. Requests without an organization are rejected.
func identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		org := c.GetHeader(stream.HeaderOrgID)
		if org == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": models.ErrMissingOrg.Error()})
			return
		}
		c.Set(ctxUserID, c.GetHeader(stream.HeaderUserID))
		c.Set(ctxOrgID, org)
		c.Next()
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrEmptyQuery), errors.Is(err, models.ErrMissingOrg):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrEmbeddingProvider), errors.Is(err, models.ErrLLMProvider):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
