package http

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "lhtl/internal/errors"
	"lhtl/internal/gallery"
	"lhtl/internal/ingest"
	"lhtl/internal/limitio"
)

// multipartMemory is how much of a multipart body is buffered in memory;
// the rest spills to temp files that are removed after the request.
const multipartMemory = 8 << 20

// Form keys accepted in addition to the canonical ones. The bundled gallery
// page posts the hyphenated names to /upload.
var fieldAliases = map[string][]string{
	ingest.FieldAuthor:     {"author-name"},
	ingest.FieldHabits:     {"current-habits", "currentHabits"},
	ingest.FieldReflection: {},
	ingest.FileScorecard:   {"scorecard-image"},
	ingest.FileComic:       {"comic-image"},
}

type worksHandler struct {
	*responder
	pipeline     *ingest.Pipeline
	gallery      *gallery.Gallery
	maxBodyBytes int64
}

func (h *worksHandler) create(c *gin.Context) {
	if id, ok := h.submit(c); ok {
		c.JSON(http.StatusCreated, gin.H{"id": id})
	}
}

// upload is the gallery page's submit route; it reads a success flag and
// work_id from the reply.
func (h *worksHandler) upload(c *gin.Context) {
	if id, ok := h.submit(c); ok {
		c.JSON(http.StatusCreated, gin.H{"success": true, "id": id, "work_id": id})
	}
}

func (h *worksHandler) submit(c *gin.Context) (string, bool) {
	sub, cleanup, err := h.readSubmission(c.Request)
	defer cleanup()
	if err != nil {
		h.writeError(c, err)
		return "", false
	}

	id, err := h.pipeline.Submit(c.Request.Context(), sub)
	if err != nil {
		h.writeError(c, err)
		return "", false
	}
	return id, true
}

func (h *worksHandler) list(c *gin.Context) {
	c.JSON(http.StatusOK, h.gallery.ListWorks(c.Request.Context()))
}

func (h *worksHandler) get(c *gin.Context) {
	rec, err := h.gallery.GetWork(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec.Public())
}

// readSubmission decodes the form. A body that is not multipart still has
// its text fields read, so missing-field reporting stays precise.
func (h *worksHandler) readSubmission(r *http.Request) (ingest.Submission, func(), error) {
	cleanup := func() {}
	err := r.ParseMultipartForm(multipartMemory)
	if r.MultipartForm != nil {
		form := r.MultipartForm
		cleanup = func() { _ = form.RemoveAll() }
	}
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return ingest.Submission{}, cleanup, h.classifyBodyError(err)
	}

	sub := ingest.Submission{
		Author:     formValue(r, ingest.FieldAuthor),
		Habits:     formValue(r, ingest.FieldHabits),
		Reflection: formValue(r, ingest.FieldReflection),
	}
	if sub.Scorecard, err = h.formFile(r, ingest.FileScorecard); err != nil {
		return ingest.Submission{}, cleanup, err
	}
	if sub.Comic, err = h.formFile(r, ingest.FileComic); err != nil {
		return ingest.Submission{}, cleanup, err
	}
	return sub, cleanup, nil
}

func formValue(r *http.Request, key string) string {
	for _, name := range append([]string{key}, fieldAliases[key]...) {
		if value := r.PostForm.Get(name); strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func (h *worksHandler) formFile(r *http.Request, key string) (*ingest.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var header *multipart.FileHeader
	for _, name := range append([]string{key}, fieldAliases[key]...) {
		if files := r.MultipartForm.File[name]; len(files) > 0 {
			header = files[0]
			break
		}
	}
	if header == nil {
		return nil, nil
	}

	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := limitio.ReadAll(file, h.maxBodyBytes)
	if err != nil {
		return nil, h.classifyBodyError(err)
	}
	return &ingest.Upload{Filename: header.Filename, Data: data}, nil
}

// classifyBodyError keeps size violations as 413 and reports every other
// parse failure as a malformed request.
func (h *worksHandler) classifyBodyError(err error) error {
	var maxBytes *http.MaxBytesError
	var tooLarge *apperrors.TooLargeError
	if errors.As(err, &maxBytes) || errors.As(err, &tooLarge) {
		return err
	}
	if strings.Contains(err.Error(), "request body too large") {
		return &apperrors.TooLargeError{Limit: h.maxBodyBytes}
	}
	return apperrors.NewValidationError("malformed request body")
}
