package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterRoutes mounts the login endpoint.
func RegisterRoutes(router *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	router.POST("/login", handler.login)
}

type httpHandler struct {
	service *Service
}

type loginRequest struct {
	ClientCode string `json:"clientCode" binding:"required,max=64"`
	Password   string `json:"password" binding:"required,max=72"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *httpHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "clientCode and password are required"})
		return
	}

	result, err := h.service.Login(c.Request.Context(), LoginInput{
		Code:     req.ClientCode,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		default:
			h.service.log.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to authenticate"})
		}
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		Token:     result.Token,
		Name:      result.Account.Name,
		ExpiresAt: result.ExpiresAt.UTC(),
	})
}
