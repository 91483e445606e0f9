package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"memchat/service"
)

const (
	userIDKey   = "UserId"
	userNameKey = "UserName"
	userKeyKey  = "UserKey"
)

// AuthController ...
type AuthController struct {
	Tokens *service.TokenService
}

func (a AuthController) setUser(c *gin.Context, details *service.AccessDetails) {
	c.Set(userIDKey, details.UserID)
	c.Set(userNameKey, details.UserName)
	c.Set(userKeyKey, details.Key())
}

// TokenValid ...
func (a AuthController) TokenValid(c *gin.Context) {
	tokenAuth, err := a.Tokens.ExtractTokenMetadata(c.Request)
	if err != nil {
		//Token either expired or not valid
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Please login first"})
		return
	}
	a.setUser(c, tokenAuth)
}

// OptionalToken identifies the caller when a valid token is sent and lets
// anonymous requests through. An invalid token is still rejected.
func (a AuthController) OptionalToken(c *gin.Context) {
	if a.Tokens.ExtractToken(c.Request) == "" {
		return
	}
	a.TokenValid(c)
}

// Refresh ...
func (a AuthController) Refresh(c *gin.Context) {
	td, err := a.Tokens.Refresh(c.Request)
	if err != nil {
		logger.Infof("[%s] refresh token rejected: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid authorization, please login again"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": td.AccessToken})
}

// userKey is empty for anonymous requests.
func userKey(c *gin.Context) string {
	return c.GetString(userKeyKey)
}
