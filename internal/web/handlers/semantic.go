package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-registry/internal/semantic"
	"go.uber.org/zap"
)

// SemanticHandler handles the image and text embedding endpoints.
type SemanticHandler struct {
	semantic *semantic.Service
	log      *zap.Logger
}

// NewSemanticHandler creates a new semantic handler.
func NewSemanticHandler(svc *semantic.Service, log *zap.Logger) *SemanticHandler {
	return &SemanticHandler{semantic: svc, log: log}
}

// ImageEmbed stores the embedding of an uploaded image.
func (h *SemanticHandler) ImageEmbed(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	data, _, _, ok := readUploadedFile(w, r)
	if !ok {
		return
	}

	result, err := h.semantic.EmbedImage(r.Context(), userID, data)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// TextEmbed stores the embedding of a text and returns the user's closest images.
func (h *SemanticHandler) TextEmbed(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	text := pathParam(r, "text")
	if text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := h.semantic.EmbedText(r.Context(), userID, text)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
