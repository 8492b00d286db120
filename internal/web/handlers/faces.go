package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/faces"
	"go.uber.org/zap"
)

// FacesHandler handles the face identity endpoints.
type FacesHandler struct {
	faces    *faces.Service
	validate *validator.Validate
	log      *zap.Logger
}

// NewFacesHandler creates a new faces handler.
func NewFacesHandler(svc *faces.Service, log *zap.Logger) *FacesHandler {
	return &FacesHandler{
		faces:    svc,
		validate: validator.New(),
		log:      log,
	}
}

// NameFaceRequest is the body of a naming request. Blank names are
// rejected by the service once the face is known to exist.
type NameFaceRequest struct {
	Name *string `json:"name" validate:"required"`
}

// ImagesResponse lists the images of a person.
type ImagesResponse struct {
	Images []database.Image `json:"images"`
}

// FacesResponse lists the faces of a user.
type FacesResponse struct {
	Faces []faces.FaceSummary `json:"faces"`
}

// NameFace assigns a name to a face.
func (h *FacesHandler) NameFace(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	faceID := chi.URLParam(r, "face_id")

	var req NameFaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	result, err := h.faces.NameFace(r.Context(), userID, faceID, *req.Name)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// FaceCrop returns the JPEG crop of a face.
func (h *FacesHandler) FaceCrop(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	faceID := chi.URLParam(r, "face_id")

	crop, err := h.faces.FaceCrop(r.Context(), userID, faceID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(crop)
}

// PersonImages returns every image containing the named person.
func (h *FacesHandler) PersonImages(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	name := pathParam(r, "name")

	images, err := h.faces.PersonImages(r.Context(), userID, name)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, ImagesResponse{Images: images})
}

// UserFaces returns all faces of a user.
func (h *FacesHandler) UserFaces(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	summaries, err := h.faces.UserFaces(r.Context(), userID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, FacesResponse{Faces: summaries})
}
