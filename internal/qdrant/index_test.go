package qdrant

import (
	"testing"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFilter(t *testing.T) {
	assert.Nil(t, buildFilter(nil))
	assert.Nil(t, buildFilter(database.VectorFilter{}))

	f := buildFilter(database.VectorFilter{"user_id": "alice", "type": "image"})
	require.NotNil(t, f)
	require.Len(t, f.Must, 2)

	// Keys are emitted in sorted order.
	assert.Equal(t, "type", f.Must[0].GetField().GetKey())
	assert.Equal(t, "image", f.Must[0].GetField().GetMatch().GetKeyword())
	assert.Equal(t, "user_id", f.Must[1].GetField().GetKey())
	assert.Equal(t, "alice", f.Must[1].GetField().GetMatch().GetKeyword())
}

func TestParseScoredPoints(t *testing.T) {
	points := []*qdrant.ScoredPoint{
		{
			Id:    qdrant.NewID("5b4c2b3a-7f8e-4d1a-9c0b-2e6f1a3d4c5b"),
			Score: 0.9,
			Payload: qdrant.NewValueMap(map[string]any{
				"user_id": "alice",
				"type":    "image",
			}),
		},
		{
			Id:    qdrant.NewIDNum(42),
			Score: 0.5,
		},
	}

	matches, err := parseScoredPoints(points)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "5b4c2b3a-7f8e-4d1a-9c0b-2e6f1a3d4c5b", matches[0].ID)
	assert.InDelta(t, 0.9, matches[0].Score, 1e-6)
	assert.Equal(t, "alice", matches[0].Metadata["user_id"])
	assert.Equal(t, "42", matches[1].ID)
	assert.Empty(t, matches[1].Metadata)
}

func TestParseScoredPoints_NilID(t *testing.T) {
	_, err := parseScoredPoints([]*qdrant.ScoredPoint{{Score: 1}})
	assert.Error(t, err)
}

func TestConvertValue(t *testing.T) {
	payload := qdrant.NewValueMap(map[string]any{
		"text":  "a dog",
		"count": 3,
		"ok":    true,
		"tags":  []any{"x", "y"},
	})

	got := convertPayload(payload)
	assert.Equal(t, "a dog", got["text"])
	assert.Equal(t, int64(3), got["count"])
	assert.Equal(t, true, got["ok"])
	assert.Equal(t, []any{"x", "y"}, got["tags"])
}
