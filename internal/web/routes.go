package web

import (
	"net/http"

	"github.com/kozaktomas/face-registry/internal/web/handlers"
)

func (s *Server) setupRoutes(svc Services) {
	facesHandler := handlers.NewFacesHandler(svc.Faces, s.log)
	semanticHandler := handlers.NewSemanticHandler(svc.Semantic, s.log)

	s.router.Get("/health", handlers.HealthCheck)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// Faces
	s.router.Post("/upload-image/{user_id}", facesHandler.UploadImage)
	s.router.Post("/name-face/{user_id}/{face_id}", facesHandler.NameFace)
	s.router.Get("/face-crop/{user_id}/{face_id}", facesHandler.FaceCrop)
	s.router.Get("/person-images/{user_id}/{name}", facesHandler.PersonImages)
	s.router.Get("/user-faces/{user_id}", facesHandler.UserFaces)

	// Semantic search
	s.router.Post("/image-embed/{user_id}", semanticHandler.ImageEmbed)
	s.router.Post("/text-embed/{user_id}/{text}", semanticHandler.TextEmbed)
}
