package ginserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"quotechat/internal/infra/storage/s3"
)

// maxAttachmentBytes caps a single chat attachment.
const maxAttachmentBytes = 20 << 20

// UploadHandler stores chat attachments and returns the path clients send
// as file messages.
type UploadHandler struct {
	Uploader s3.Uploader
	Logger   *slog.Logger
}

func (h UploadHandler) Upload(c *gin.Context) {
	if _, ok := requirePrincipal(c); !ok {
		return
	}
	if h.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "uploads unavailable"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "file is required"})
		return
	}
	if file.Size > maxAttachmentBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": "attachment too large"})
		return
	}
	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unreadable file"})
		return
	}
	defer src.Close()

	contentType := c.PostForm("content_type")
	if contentType == "" {
		contentType = file.Header.Get("Content-Type")
	}
	key := fmt.Sprintf("chat/%s%s", uuid.NewString(), filepath.Ext(file.Filename))
	path, err := h.Uploader.Upload(c.Request.Context(), key, src, contentType)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("attachment upload failed", "key", key, "error", err)
		}
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"file_path": path}})
}

var _ UploadHTTP = (*UploadHandler)(nil)
