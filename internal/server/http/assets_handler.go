package http

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"lhtl/internal/analysis"
	apperrors "lhtl/internal/errors"
	"lhtl/internal/gallery"
	"lhtl/internal/store"
)

const immutableCacheControl = "public, max-age=31536000, immutable"

type assetHandler struct {
	*responder
	gallery    *gallery.Gallery
	audioStore *store.AssetStore
}

func (h *assetHandler) image(c *gin.Context) {
	asset, err := h.gallery.OpenAsset(c.Param("filename"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.serveFile(c, asset.Name, asset.Path, asset.ContentType)
}

func (h *assetHandler) audio(c *gin.Context) {
	name := c.Param("filename")
	if h.audioStore == nil {
		h.writeError(c, &apperrors.NotFoundError{Resource: "audio", Name: name})
		return
	}
	path, err := h.audioStore.Resolve(name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.serveFile(c, name, path, analysis.AudioContentType(name))
}

func (h *assetHandler) serveFile(c *gin.Context, name, path, contentType string) {
	file, err := os.Open(path)
	if err != nil {
		h.writeError(c, &apperrors.NotFoundError{Resource: "asset", Name: name})
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		h.writeError(c, &apperrors.NotFoundError{Resource: "asset", Name: name})
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, map[string]string{
		"Cache-Control":          immutableCacheControl,
		"X-Content-Type-Options": "nosniff",
	})
}
