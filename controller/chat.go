package controller

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"memchat/chat"
	"memchat/platform"
	"memchat/service"
)

type ChatController struct {
	Service *service.ChatService
}

// Chat streams the assistant reply as plain text. Errors before the first
// fragment are answered as JSON; later ones can only end the stream.
func (ch ChatController) Chat(c *gin.Context) {
	requestID := c.GetString("requestId")
	start := time.Now()

	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warnf("[%s] Invalid input, %s", requestID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Messages are required"})
		return
	}
	req.UserID = userKey(c)
	req.RequestID = requestID

	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Warnf("[%s] get Writer flusher error", requestID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return
	}

	started := false
	onDelta := func(content string) error {
		if !started {
			started = true
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
		}
		if _, err := io.WriteString(w, content); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	result, err := ch.Service.Chat(c.Request.Context(), &req, onDelta)
	if err != nil {
		if errors.Is(err, chat.ErrValidation) || !started {
			abortWithError(c, err, "Failed to process chat request")
			return
		}
		logger.Warnf("[%s] stream error, %s", requestID, err)
		return
	}
	if !started {
		// empty reply
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}

	logger.Infof("[%s] chat %s finished, model %s, %d/%d tokens, %d dropped, %d chars in %dms",
		requestID, req.ConversationID, req.Model, result.Budget.Used, result.Budget.Budget,
		result.Budget.Dropped, len(result.Message.Content), platform.Since(start))
}

// Budget reports how the history would be fitted without calling the model.
func (ch ChatController) Budget(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	req.UserID = userKey(c)
	fit, outbound, err := ch.Service.Prepare(c.Request.Context(), &req)
	if err != nil {
		abortWithError(c, err, "Failed to fit context")
		return
	}
	c.Header("X-Token-Budget", strconv.Itoa(fit.Budget))
	c.JSON(http.StatusOK, gin.H{
		"model":    req.Model,
		"budget":   fit.Budget,
		"used":     fit.Used,
		"dropped":  fit.Dropped,
		"messages": outbound,
	})
}
