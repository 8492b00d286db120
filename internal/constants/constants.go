// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Matching constants
const (
	// DefaultTopK is the number of nearest neighbors fetched when none is configured
	DefaultTopK = 5
)

// Image constants
const (
	// CropJPEGQuality is the JPEG quality of served face crops
	CropJPEGQuality = 85
)

// HTTP constants
const (
	// MaxUploadSize is the maximum file upload size in bytes (100MB)
	MaxUploadSize = 100 << 20

	// RequestTimeout bounds a single request, including model calls
	RequestTimeout = 5 * time.Minute
)
