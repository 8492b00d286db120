package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Supported vector index backends.
const (
	BackendPgvector = "pgvector"
	BackendHNSW     = "hnsw"
	BackendQdrant   = "qdrant"
)

type Config struct {
	Database  DatabaseConfig
	Blob      BlobConfig
	Embedding EmbeddingConfig
	Index     IndexConfig
	Qdrant    QdrantConfig
	Matching  MatchingConfig
	Semantic  SemanticConfig
	Log       LogConfig
	Web       WebConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type BlobConfig struct {
	Endpoint      string // S3-compatible endpoint, host[:port]
	AccessKey     string
	SecretKey     string
	Bucket        string // defaults to face-registry
	UseSSL        bool
	PublicBaseURL string // base for public object URLs (optional, derived from endpoint when empty)
}

// ObjectURL returns the publicly resolvable URL for an object key.
func (c *BlobConfig) ObjectURL(key string) string {
	base := c.PublicBaseURL
	if base == "" {
		scheme := "http"
		if c.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, c.Endpoint, c.Bucket)
	}
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.Join(segments, "/")
}

type EmbeddingConfig struct {
	URL         string // defaults to http://localhost:8000
	FaceDim     int    // defaults to 128 (Facenet)
	SemanticDim int    // defaults to 512 (CLIP ViT-B/32)
}

type IndexConfig struct {
	FaceBackend      string // pgvector, hnsw or qdrant
	SemanticBackend  string // pgvector, hnsw or qdrant
	HNSWFacePath     string // Path to persist face HNSW index (optional)
	HNSWSemanticPath string // Path to persist semantic HNSW index (optional)
}

type QdrantConfig struct {
	Host               string
	Port               int
	APIKey             string
	FaceCollection     string
	SemanticCollection string
}

type MatchingConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TopK                int     `yaml:"top_k"`
	// LinkMatchedImages appends the uploaded image to a matched face's references.
	LinkMatchedImages bool `yaml:"-"`
}

type SemanticConfig struct {
	TopK int `yaml:"top_k"`
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type fileDefaults struct {
	Matching MatchingConfig `yaml:"matching"`
	Semantic SemanticConfig `yaml:"semantic"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envBool reads a boolean environment variable, falling back to defaultVal.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return b
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated environment variable, dropping empty entries.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var defaults fileDefaults
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	defaults.Matching.LinkMatchedImages = envBool("FACE_LINK_MATCHED_IMAGES", false)

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Blob: BlobConfig{
			Endpoint:      os.Getenv("BLOB_ENDPOINT"),
			AccessKey:     os.Getenv("BLOB_ACCESS_KEY"),
			SecretKey:     os.Getenv("BLOB_SECRET_KEY"),
			Bucket:        envString("BLOB_BUCKET", "face-registry"),
			UseSSL:        envBool("BLOB_USE_SSL", false),
			PublicBaseURL: os.Getenv("BLOB_PUBLIC_BASE_URL"),
		},
		Embedding: EmbeddingConfig{
			URL:         envString("EMBEDDING_URL", "http://localhost:8000"),
			FaceDim:     envInt("FACE_EMBEDDING_DIM", 128),
			SemanticDim: envInt("SEMANTIC_EMBEDDING_DIM", 512),
		},
		Index: IndexConfig{
			FaceBackend:      envString("FACE_INDEX_BACKEND", BackendPgvector),
			SemanticBackend:  envString("SEMANTIC_INDEX_BACKEND", BackendPgvector),
			HNSWFacePath:     os.Getenv("HNSW_FACE_INDEX_PATH"),
			HNSWSemanticPath: os.Getenv("HNSW_SEMANTIC_INDEX_PATH"),
		},
		Qdrant: QdrantConfig{
			Host:               envString("QDRANT_HOST", "localhost"),
			Port:               envInt("QDRANT_PORT", 6334),
			APIKey:             os.Getenv("QDRANT_API_KEY"),
			FaceCollection:     envString("QDRANT_FACE_COLLECTION", "face-recognition"),
			SemanticCollection: envString("QDRANT_SEMANTIC_COLLECTION", "image-embeddings"),
		},
		Matching: defaults.Matching,
		Semantic: defaults.Semantic,
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if c.Blob.Endpoint == "" {
		return fmt.Errorf("BLOB_ENDPOINT environment variable is required")
	}
	for _, backend := range []string{c.Index.FaceBackend, c.Index.SemanticBackend} {
		switch backend {
		case BackendPgvector, BackendHNSW, BackendQdrant:
		default:
			return fmt.Errorf("unknown vector index backend %q", backend)
		}
	}
	return nil
}
