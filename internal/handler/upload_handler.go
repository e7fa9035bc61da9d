package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/edumsg/internal/middleware"
	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/internal/service"
	"github.com/quocanhngo/edumsg/pkg/storage"
)

// Max upload size: 50MB per request
const maxUploadSize = 50 << 20

const maxFilesPerMessage = 10

// Allowed MIME types
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var allowedFileTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-powerpoint":                                     true,
	"application/zip":                                                   true,
	"text/plain":                                                        true,
	"audio/mpeg":                                                        true,
	"video/mp4":                                                         true,
}

var errTooLarge = errors.New("attachments too large (max 50MB)")

// isAllowedType reports whether attachments of this content type are accepted
func isAllowedType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	return allowedImageTypes[ct] || allowedFileTypes[ct]
}

// readAttachments loads the "files" parts of a multipart send request
func readAttachments(form *multipart.Form) ([]model.AttachmentInput, error) {
	headers := form.File["files"]
	if len(headers) > maxFilesPerMessage {
		return nil, model.Validationf("maximum %d files allowed", maxFilesPerMessage)
	}

	inputs := make([]model.AttachmentInput, 0, len(headers))
	for _, header := range headers {
		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = storage.DetectContentType(filepath.Ext(header.Filename))
		}
		if !isAllowedType(contentType) {
			return nil, model.Validationf("unsupported file type %q for %s", contentType, header.Filename)
		}

		data, err := readPart(header)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, model.AttachmentInput{
			FileName: filepath.Base(header.Filename),
			MimeType: contentType,
			Data:     data,
		})
	}
	return inputs, nil
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", header.Filename, err)
	}
	defer file.Close()
	return io.ReadAll(file)
}

// downloadLinkExpiry is how long a signed attachment link stays valid
const downloadLinkExpiry = 15 * time.Minute

// URLSigner issues temporary download links for stored attachments
type URLSigner interface {
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// AttachmentHandler serves attachment downloads
type AttachmentHandler struct {
	messageService *service.MessageService
	signer         URLSigner
}

// NewAttachmentHandler creates a new attachment handler
func NewAttachmentHandler(messageService *service.MessageService, signer URLSigner) *AttachmentHandler {
	return &AttachmentHandler{messageService: messageService, signer: signer}
}

// Download godoc
// @Summary Download an attachment
// @Description Redirects to a short-lived signed link. Only participants of the conversation may download.
// @Tags Messages
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Param attachmentId path int true "Attachment ID"
// @Success 302
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /messages/{id}/attachments/{attachmentId} [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	msgID, ok := paramID(c, "id")
	if !ok {
		return
	}
	attachmentID, ok := paramID(c, "attachmentId")
	if !ok {
		return
	}

	msg, err := h.messageService.GetMessage(c.Request.Context(), middleware.Identity(c), msgID)
	if err != nil {
		respondError(c, err)
		return
	}

	for _, a := range msg.Attachments {
		if a.ID != attachmentID {
			continue
		}
		url, err := h.signer.PresignedURL(c.Request.Context(), a.FilePath, downloadLinkExpiry)
		if err != nil {
			respondError(c, fmt.Errorf("%w: %v", model.ErrAttachmentFailure, err))
			return
		}
		c.Redirect(http.StatusFound, url)
		return
	}
	c.JSON(http.StatusNotFound, model.ErrorResponse{Error: "Attachment not found"})
}
