package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"memchat/chat"
	"memchat/memory"
	"memchat/model"
	"memchat/platform"
)

var logger = platform.Logger

func statusOf(err error) int {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrConversationNotFound), errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrDuplicateMemory), errors.Is(err, model.ErrConversationExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError answers with the status err maps to. Internal failures are
// logged and answered with msg only.
func abortWithError(c *gin.Context, err error, msg string) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Warnf("[%s] %s: %s", c.GetString("requestId"), msg, err)
		c.AbortWithStatusJSON(status, gin.H{"error": msg})
		return
	}
	logger.Infof("[%s] %s: %s", c.GetString("requestId"), msg, err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
