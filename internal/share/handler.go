package share

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abduss/clientdrop/internal/auth"
	"github.com/abduss/clientdrop/internal/file"
	"github.com/abduss/clientdrop/internal/logger"
)

// Handler serves share link issuance and redemption.
type Handler struct {
	service    *Service
	publicURL  string
	redeemPath string
	log        *zap.Logger
}

// NewHandler builds a Handler. publicURL overrides the request's scheme and
// host when building links.
func NewHandler(service *Service, publicURL string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, publicURL: strings.TrimRight(publicURL, "/"), log: log}
}

// RegisterRoutes mounts link issuance on the authenticated group and
// redemption on the public one.
func (h *Handler) RegisterRoutes(protected, public *gin.RouterGroup) {
	h.redeemPath = strings.TrimRight(public.BasePath(), "/") + "/shared/"
	protected.GET("/files/:id/share", h.shareFile)
	public.GET("/shared/:token", h.redeem)
}

type shareResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) shareFile(c *gin.Context) {
	ownerID, _, ok := auth.RequireAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	fileID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	link, err := h.service.Share(c.Request.Context(), ownerID, fileID)
	if err != nil {
		if errors.Is(err, file.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		logger.FromContext(c, h.log).Error("share file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to share file"})
		return
	}

	c.JSON(http.StatusOK, shareResponse{
		URL:       h.baseURL(c) + h.redeemPath + link.Token,
		ExpiresAt: link.ExpiresAt.UTC(),
	})
}

func (h *Handler) redeem(c *gin.Context) {
	rec, reader, err := h.service.Redeem(c.Request.Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, ErrLinkInvalid) {
			c.JSON(http.StatusNotFound, gin.H{"error": ErrLinkInvalid.Error()})
			return
		}
		logger.FromContext(c, h.log).Error("redeem link", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to download file"})
		return
	}
	file.WriteAttachment(c, rec, reader, h.log)
}

func (h *Handler) baseURL(c *gin.Context) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}
