package faces

import (
	"encoding/json"

	"github.com/kozaktomas/face-registry/internal/database"
)

// Resolution statuses.
const (
	StatusMatched = "matched"
	StatusNewFace = "new_face"
)

// FaceResult is the outcome of resolving one detection.
type FaceResult struct {
	Status     string
	FaceID     string
	Name       *string // matched only; nil for an unnamed match
	Confidence float64 // matched only
	NeedNaming bool    // new_face only
}

type matchedJSON struct {
	Status     string  `json:"status"`
	FaceID     string  `json:"face_id"`
	Name       *string `json:"name"`
	Confidence float64 `json:"confidence"`
}

type newFaceJSON struct {
	Status     string `json:"status"`
	FaceID     string `json:"face_id"`
	NeedNaming bool   `json:"need_naming"`
}

// MarshalJSON emits only the fields that belong to the result's status.
func (r FaceResult) MarshalJSON() ([]byte, error) {
	if r.Status == StatusMatched {
		return json.Marshal(matchedJSON{Status: r.Status, FaceID: r.FaceID, Name: r.Name, Confidence: r.Confidence})
	}
	return json.Marshal(newFaceJSON{Status: r.Status, FaceID: r.FaceID, NeedNaming: r.NeedNaming})
}

// ResolveResult is the outcome of an upload.
// UnnamedFaces is nil when no face was detected and non-nil otherwise.
type ResolveResult struct {
	Results      []FaceResult `json:"results"`
	UnnamedFaces []FaceResult `json:"unnamed_faces"`
	ImageID      string       `json:"image_id,omitempty"`
}

// NameResult is the outcome of naming a face.
type NameResult struct {
	Status string `json:"status"`
	FaceID string `json:"face_id"`
}

// FaceSummary lists a face with its name, which is nil until named.
type FaceSummary struct {
	FaceID string  `json:"face_id"`
	Name   *string `json:"name"`
}

func summarize(f database.Face) FaceSummary {
	return FaceSummary{FaceID: f.ID, Name: f.Name}
}
