package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"memchat/chat"
	"memchat/memory"
)

type MemoryController struct {
	Memories *memory.Service
}

type memoryRequest struct {
	Action         string         `json:"action"`
	ConversationID string         `json:"conversationId"`
	Messages       []chat.Message `json:"messages"`
	UserID         string         `json:"userId"`
	Query          string         `json:"query"`
	Limit          int            `json:"limit"`
}

// owner prefers the authenticated user over the one named in the body.
func (r *memoryRequest) owner(c *gin.Context) string {
	if key := userKey(c); key != "" {
		return key
	}
	return r.UserID
}

func (m MemoryController) Post(c *gin.Context) {
	requestID := c.GetString("requestId")
	var req memoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warnf("[%s] Invalid input, %s", requestID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	ctx := c.Request.Context()

	switch req.Action {
	case "create":
		if req.ConversationID == "" || req.Messages == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId and messages are required"})
			return
		}
		created, err := m.Memories.CreateMemory(ctx, req.ConversationID, req.Messages, req.owner(c))
		if err != nil {
			abortWithError(c, err, "Internal server error")
			return
		}
		c.JSON(http.StatusOK, created)

	case "update":
		if req.ConversationID == "" || req.Messages == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId and messages are required"})
			return
		}
		if err := m.Memories.UpdateMemory(ctx, req.ConversationID, req.Messages, req.owner(c)); err != nil {
			abortWithError(c, err, "Internal server error")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})

	case "search":
		if req.Query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query is required for search"})
			return
		}
		found, err := m.Memories.SearchMemories(ctx, req.Query, req.owner(c), req.Limit)
		if err != nil {
			abortWithError(c, err, "Internal server error")
			return
		}
		c.JSON(http.StatusOK, nonNilMemories(found))

	case "getRelevant":
		if req.Query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
			return
		}
		found, err := m.Memories.GetRelevantContext(ctx, req.Query, req.owner(c))
		if err != nil {
			abortWithError(c, err, "Internal server error")
			return
		}
		c.JSON(http.StatusOK, nonNilMemories(found))

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
	}
}

func (m MemoryController) Get(c *gin.Context) {
	conversationID := c.Query("conversationId")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId is required"})
		return
	}
	found, err := m.Memories.GetMemory(c.Request.Context(), conversationID, userKey(c))
	if err != nil {
		abortWithError(c, err, "Internal server error")
		return
	}
	// null when there is no memory yet
	c.JSON(http.StatusOK, found)
}

func (m MemoryController) Delete(c *gin.Context) {
	conversationID := c.Query("conversationId")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId is required"})
		return
	}
	if err := m.Memories.DeleteMemory(c.Request.Context(), conversationID, userKey(c)); err != nil {
		abortWithError(c, err, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func nonNilMemories(m []memory.ConversationMemory) []memory.ConversationMemory {
	if m == nil {
		return []memory.ConversationMemory{}
	}
	return m
}
