// Package embedding talks to the embedding server that detects faces and
// computes face, image and text embeddings.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	defaultTimeout      = 2 * time.Minute

	// noFaceMessage is what the face endpoint reports when detection is enforced and finds nothing.
	noFaceMessage = "Face could not be detected"
)

// ErrNoFaceDetected is returned by DetectFaces when the image contains no face.
var ErrNoFaceDetected = errors.New("no face detected")

// APIError is a non-2xx response from the embedding server.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Detection is a single detected face with its embedding and pixel bounding box.
type Detection struct {
	Embedding []float32
	BBox      database.BoundingBox
	Score     float64
}

// Client computes embeddings using the embedding server.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new embedding client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// embeddingResponse represents the response from the image and text endpoints.
type embeddingResponse struct {
	Dim        int       `json:"dim"`
	Embedding  []float32 `json:"embedding"`
	Model      string    `json:"model"`
	Pretrained string    `json:"pretrained"`
}

// faceDetection represents a single face in the face endpoint response.
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

type textEmbeddingRequest struct {
	Text string `json:"text"`
}

// do sends the request and returns the body of a 200 response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// postMultipartImage posts the image as the "file" form field of a multipart request.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", http.DetectContentType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

func parseEmbedding(body []byte) ([]float32, error) {
	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return embResp.Embedding, nil
}

// DetectFaces detects every face in the image and returns them in provider order.
// Returns ErrNoFaceDetected when the image contains no face.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) ([]Detection, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && strings.Contains(apiErr.Body, noFaceMessage) {
			return nil, ErrNoFaceDetected
		}
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(faceResp.Faces) == 0 {
		return nil, ErrNoFaceDetected
	}

	detections := make([]Detection, 0, len(faceResp.Faces))
	for i, f := range faceResp.Faces {
		if len(f.Embedding) == 0 {
			return nil, fmt.Errorf("face %d: empty embedding returned", i)
		}
		bbox, err := cornerToBox(f.BBox)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		detections = append(detections, Detection{
			Embedding: f.Embedding,
			BBox:      bbox,
			Score:     f.DetScore,
		})
	}
	return detections, nil
}

// cornerToBox converts [x1, y1, x2, y2] pixel corners to an x, y, w, h box.
func cornerToBox(corners []float64) (database.BoundingBox, error) {
	if len(corners) != 4 {
		return database.BoundingBox{}, fmt.Errorf("invalid bbox length %d", len(corners))
	}
	x1 := int(math.Round(corners[0]))
	y1 := int(math.Round(corners[1]))
	x2 := int(math.Round(corners[2]))
	y2 := int(math.Round(corners[3]))
	return database.BoundingBox{X: x1, Y: y1, W: max(x2-x1, 0), H: max(y2-y1, 0)}, nil
}

// ImageEmbedding computes the semantic embedding of an image.
func (c *Client) ImageEmbedding(ctx context.Context, imageData []byte) ([]float32, error) {
	body, err := c.postMultipartImage(ctx, "/embed/image", imageData)
	if err != nil {
		return nil, err
	}
	return parseEmbedding(body)
}

// TextEmbedding computes the semantic embedding of a text query, in the same space as ImageEmbedding.
func (c *Client) TextEmbedding(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(textEmbeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed/text", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return parseEmbedding(body)
}
