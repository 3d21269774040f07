package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lhtl/internal/analysis"
	apperrors "lhtl/internal/errors"
	"lhtl/internal/gallery"
)

type analyzeRequest struct {
	Author         string `json:"author"`
	Habits         string `json:"habits"`
	CurrentHabits  string `json:"currentHabits"`
	Reflection     string `json:"reflection"`
	ScorecardImage string `json:"scorecardImage"`
	ComicImage     string `json:"comicImage"`

	// Keys sent by the bundled chat widget.
	ScorecardBase64 string `json:"scorecard_base64"`
	ComicBase64     string `json:"comic_base64"`
}

// normalize folds the widget keys into the canonical ones and reports
// whether the widget keys were used.
func (r *analyzeRequest) normalize() bool {
	widget := false
	if strings.TrimSpace(r.ScorecardImage) == "" && strings.TrimSpace(r.ScorecardBase64) != "" {
		r.ScorecardImage = r.ScorecardBase64
		widget = true
	}
	if strings.TrimSpace(r.ComicImage) == "" && strings.TrimSpace(r.ComicBase64) != "" {
		r.ComicImage = r.ComicBase64
		widget = true
	}
	if strings.TrimSpace(r.Habits) == "" {
		r.Habits = r.CurrentHabits
	}
	return widget
}

// analyzeResponse carries the success flag the browser client checks.
// AudioDataBase64 repeats the audio under the widget's key and is only
// filled for widget-shaped requests.
type analyzeResponse struct {
	Success bool `json:"success"`
	analysis.Result
	AudioDataBase64 string `json:"audio_data_base64,omitempty"`
}

type analyzeHandler struct {
	*responder
	gallery *gallery.Gallery
	service *analysis.Service
}

// analyze handles images supplied inline as base64.
func (h *analyzeHandler) analyze(c *gin.Context) {
	if h.service == nil {
		h.writeError(c, &apperrors.UnavailableError{Service: "analysis"})
		return
	}

	var req analyzeRequest
	dec := json.NewDecoder(c.Request.Body)
	if err := dec.Decode(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			h.writeError(c, err)
			return
		}
		if errors.Is(err, io.EOF) {
			h.writeError(c, apperrors.NewValidationError("request body is empty"))
			return
		}
		h.writeError(c, apperrors.NewValidationError("request body must be a JSON object"))
		return
	}

	widget := req.normalize()

	var missing []string
	if strings.TrimSpace(req.ScorecardImage) == "" {
		missing = append(missing, "scorecardImage")
	}
	if strings.TrimSpace(req.ComicImage) == "" {
		missing = append(missing, "comicImage")
	}
	if len(missing) > 0 {
		h.writeError(c, apperrors.NewValidationError("missing required images", missing...))
		return
	}

	h.run(c, analysis.Request{
		Author:         req.Author,
		Habits:         req.Habits,
		Reflection:     req.Reflection,
		ScorecardImage: req.ScorecardImage,
		ComicImage:     req.ComicImage,
	}, widget)
}

// analyzeStored analyzes a stored work. The store lock is released before
// the upstream call starts.
func (h *analyzeHandler) analyzeStored(c *gin.Context) {
	if h.service == nil {
		h.writeError(c, &apperrors.UnavailableError{Service: "analysis"})
		return
	}
	ctx := c.Request.Context()
	rec, err := h.gallery.GetWork(ctx, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	scorecard, err := h.gallery.ReadAssetDataURL(rec.ScorecardFilename)
	if err != nil {
		h.writeError(c, err)
		return
	}
	comic, err := h.gallery.ReadAssetDataURL(rec.ComicFilename)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.run(c, analysis.Request{
		Author:         rec.Author,
		Habits:         rec.CurrentHabits,
		Reflection:     rec.Reflection,
		ScorecardImage: scorecard,
		ComicImage:     comic,
	}, false)
}

func (h *analyzeHandler) run(c *gin.Context, req analysis.Request, widget bool) {
	result, err := h.service.Analyze(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := analyzeResponse{Success: true, Result: result}
	if widget {
		resp.AudioDataBase64 = result.AudioBase64
	}
	c.JSON(http.StatusOK, resp)
}
