// Package facematch holds the image and name helpers shared by the face workflows.
package facematch

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/database"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrEmptyCrop is returned when a bounding box does not overlap the image.
var ErrEmptyCrop = errors.New("bounding box outside image")

// DecodeConfig validates that data is a decodable image and returns its dimensions and format.
func DecodeConfig(data []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return cfg, format, nil
}

// BoxRect converts a pixel bounding box to an image rectangle relative to bounds.Min.
func BoxRect(bbox database.BoundingBox, bounds image.Rectangle) image.Rectangle {
	return image.Rect(bbox.X, bbox.Y, bbox.X+bbox.W, bbox.Y+bbox.H).Add(bounds.Min)
}

// CropFace cuts the bounding box out of the image and encodes the region as JPEG.
// The box is clamped to the image bounds.
func CropFace(data []byte, bbox database.BoundingBox) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	rect := BoxRect(bbox, bounds).Intersect(bounds)
	if rect.Empty() {
		return nil, ErrEmptyCrop
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: constants.CropJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
