package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"memchat/model"
	"memchat/service"
)

type ConversationController struct {
	Conversations *service.ConversationService
}

func (cc ConversationController) List(c *gin.Context) {
	conversations, err := cc.Conversations.List(c.Request.Context(), userKey(c))
	if err != nil {
		abortWithError(c, err, "Failed to fetch conversations")
		return
	}
	if conversations == nil {
		conversations = []model.Conversation{}
	}
	c.JSON(http.StatusOK, conversations)
}

func (cc ConversationController) Get(c *gin.Context) {
	conversation, err := cc.Conversations.Get(c.Request.Context(), c.Param("id"), userKey(c))
	if err != nil {
		abortWithError(c, err, "Failed to fetch conversation")
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (cc ConversationController) Create(c *gin.Context) {
	var input service.ConversationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	conversation, err := cc.Conversations.Create(c.Request.Context(), &input, userKey(c))
	if err != nil {
		abortWithError(c, err, "Failed to create conversation")
		return
	}
	c.JSON(http.StatusCreated, conversation)
}

func (cc ConversationController) Put(c *gin.Context) {
	var input service.ConversationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if id := c.Param("id"); id != "" {
		input.ID = id
	}
	if _, err := cc.Conversations.Save(c.Request.Context(), &input, userKey(c)); err != nil {
		abortWithError(c, err, "Failed to update conversation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (cc ConversationController) Delete(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		id = c.Query("id")
	}
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Conversation ID is required"})
		return
	}
	if err := cc.Conversations.Delete(c.Request.Context(), id, userKey(c)); err != nil {
		abortWithError(c, err, "Failed to delete conversation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Export renders the transcript as HTML, or markdown with ?format=md.
func (cc ConversationController) Export(c *gin.Context) {
	conversation, err := cc.Conversations.Get(c.Request.Context(), c.Param("id"), userKey(c))
	if err != nil {
		abortWithError(c, err, "Failed to export conversation")
		return
	}
	if c.Query("format") == "md" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(service.TranscriptMarkdown(conversation)))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", service.TranscriptHTML(conversation))
}
