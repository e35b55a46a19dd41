package handler

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/gatewise/vms-api/pkg/errors"
	"github.com/gatewise/vms-api/pkg/response"
	"github.com/gatewise/vms-api/pkg/storage"
)

// FilesHandler serves stored visitor photos behind signed tokens.
type FilesHandler struct {
	store  *storage.LocalStorage
	signer *storage.SignedURLSigner
}

// NewFilesHandler creates a new handler.
func NewFilesHandler(store *storage.LocalStorage, signer *storage.SignedURLSigner) *FilesHandler {
	return &FilesHandler{store: store, signer: signer}
}

// Serve validates the token and streams the referenced file.
func (h *FilesHandler) Serve(c *gin.Context) {
	if h.store == nil || h.signer == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file storage is not configured"))
		return
	}

	_, relPath, _, err := h.signer.Parse(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired file token"))
		return
	}

	c.File(h.store.Path(relPath))
}
