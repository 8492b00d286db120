package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// UploadImage stores an uploaded image and resolves the faces in it.
func (h *FacesHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	data, filename, contentType, ok := readUploadedFile(w, r)
	if !ok {
		return
	}

	result, err := h.faces.Resolve(r.Context(), userID, data, filename, contentType)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
