package file

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abduss/clientdrop/internal/auth"
	"github.com/abduss/clientdrop/internal/blob"
	"github.com/abduss/clientdrop/internal/logger"
)

// slack for multipart boundaries and part headers on top of the file ceiling
const multipartOverhead = 1 << 20

// isoMillis matches the listing timestamp format clients already parse.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// RegisterRoutes mounts file operations under the provided, authenticated group.
func RegisterRoutes(group *gin.RouterGroup, service *Service, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	handler := &httpHandler{service: service, log: log}
	group.POST("/upload", handler.uploadFile)
	group.GET("/files", handler.listFiles)
	group.GET("/files/:id/download", handler.downloadFile)
	group.GET("/files/:id/url", handler.locateFile)
	group.DELETE("/files/:id", handler.deleteFile)
}

type httpHandler struct {
	service *Service
	log     *zap.Logger
}

type listEntry struct {
	ID           string `json:"id"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
	Mime         string `json:"mime"`
	UploadDate   string `json:"upload_date"`
}

func (h *httpHandler) uploadFile(c *gin.Context) {
	ownerID, _, ok := auth.RequireAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.service.MaxFileSize()+multipartOverhead)
	reader, err := c.Request.MultipartReader()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form with a file field is required"})
		return
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrMissingFile.Error()})
			return
		}
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": ErrPayloadTooLarge.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed multipart body"})
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		rec, err := h.service.Upload(c.Request.Context(), UploadInput{
			OwnerID:     ownerID,
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
		})
		_ = part.Close()
		if err != nil {
			h.respondError(c, err, "failed to upload file")
			return
		}

		c.JSON(http.StatusCreated, gin.H{"id": rec.ID.String(), "message": "uploaded"})
		return
	}
}

func (h *httpHandler) listFiles(c *gin.Context) {
	ownerID, _, ok := auth.RequireAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	records, err := h.service.List(c.Request.Context(), ownerID)
	if err != nil {
		h.respondError(c, err, "failed to list files")
		return
	}

	entries := make([]listEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, listEntry{
			ID:           rec.ID.String(),
			OriginalName: rec.OriginalName,
			Size:         rec.SizeBytes,
			Mime:         rec.ContentType,
			UploadDate:   rec.CreatedAt.UTC().Format(isoMillis),
		})
	}
	c.JSON(http.StatusOK, entries)
}

func (h *httpHandler) downloadFile(c *gin.Context) {
	ownerID, _, ok := auth.RequireAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	fileID, ok := parseFileID(c)
	if !ok {
		return
	}

	rec, reader, err := h.service.Download(c.Request.Context(), ownerID, fileID)
	if err != nil {
		h.respondError(c, err, "failed to download file")
		return
	}
	WriteAttachment(c, rec, reader, h.log)
}

func (h *httpHandler) locateFile(c *gin.Context) {
	ownerID, _, ok := auth.RequireAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	fileID, ok := parseFileID(c)
	if !ok {
		return
	}

	url, err := h.service.Locate(c.Request.Context(), ownerID, fileID)
	if err != nil {
		h.respondError(c, err, "failed to locate file")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *httpHandler) deleteFile(c *gin.Context) {
	ownerID, _, ok := auth.RequireAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	fileID, ok := parseFileID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), ownerID, fileID); err != nil {
		h.respondError(c, err, "failed to delete file")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *httpHandler) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
	case errors.Is(err, ErrPayloadTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": ErrPayloadTooLarge.Error()})
	case errors.Is(err, ErrMissingFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrMissingFile.Error()})
	case errors.Is(err, blob.ErrStorageDelete):
		logger.FromContext(c, h.log).Error(fallback, zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": fallback})
	default:
		logger.FromContext(c, h.log).Error(fallback, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// parseFileID reports malformed ids as missing files.
func parseFileID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return uuid.Nil, false
	}
	return id, true
}

// WriteAttachment streams reader to the client as a download of rec and
// closes it.
func WriteAttachment(c *gin.Context, rec Record, reader io.ReadCloser, log *zap.Logger) {
	defer reader.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": rec.OriginalName})
	if disposition == "" {
		disposition = "attachment"
	}

	c.Header("Content-Type", rec.ContentType)
	c.Header("Content-Disposition", disposition)
	c.Header("Content-Length", strconv.FormatInt(rec.SizeBytes, 10))
	c.Header("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, reader); err != nil && log != nil {
		logger.FromContext(c, log).Warn("download interrupted",
			zap.String("file_id", rec.ID.String()),
			zap.Error(err),
		)
	}
}
