package faces

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"testing"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
)

func TestFaceCrop(t *testing.T) {
	env := newTestEnv(t, config.MatchingConfig{})
	ctx := context.Background()

	env.blobs.Put(ctx, "users/alice/images/a.png", testPNG(t, 100, 100), "image/png")
	env.store.AddImage(database.Image{ID: "img-a", UserID: "alice", StoragePath: "users/alice/images/a.png"})
	env.store.AddImage(database.Image{ID: "img-b", UserID: "alice", StoragePath: "users/alice/images/missing.png"})
	env.store.AddFace(database.Face{
		ID:        "face-a",
		UserID:    "alice",
		BBox:      database.BoundingBox{X: 10, Y: 10, W: 30, H: 30},
		ImageRefs: []string{"img-a", "img-b"},
	})

	crop, err := env.svc.FaceCrop(ctx, "alice", "face-a")
	if err != nil {
		t.Fatalf("FaceCrop failed: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(crop))
	if err != nil {
		t.Fatalf("crop is not a JPEG: %v", err)
	}
	if img.Bounds().Dx() != 30 || img.Bounds().Dy() != 30 {
		t.Errorf("expected 30x30, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestFaceCrop_NotFound(t *testing.T) {
	env := newTestEnv(t, config.MatchingConfig{})
	env.store.AddFace(database.Face{ID: "face-orphan", UserID: "alice", ImageRefs: []string{"img-gone"}})

	tests := []struct {
		name     string
		userID   string
		faceID   string
		expected error
	}{
		{"unknown face", "alice", "face-x", ErrFaceNotFound},
		{"other user", "bob", "face-orphan", ErrFaceNotFound},
		{"missing image", "alice", "face-orphan", ErrImageNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.FaceCrop(context.Background(), tc.userID, tc.faceID)
			if !errors.Is(err, tc.expected) {
				t.Errorf("expected %v, got %v", tc.expected, err)
			}
			if !errors.Is(err, database.ErrNotFound) {
				t.Error("expected error to match database.ErrNotFound")
			}
		})
	}
}

func TestPersonImages(t *testing.T) {
	env := newTestEnv(t, config.MatchingConfig{})
	for _, id := range []string{"img-1", "img-2", "img-3", "img-4"} {
		env.store.AddImage(database.Image{ID: id, UserID: "alice", StoragePath: "users/alice/images/" + id})
	}
	env.store.AddFace(database.Face{ID: "face-1", UserID: "alice", Name: strPtr("Bob"), ImageRefs: []string{"img-1", "img-2"}})
	env.store.AddFace(database.Face{ID: "face-2", UserID: "alice", Name: strPtr("Carol"), ImageRefs: []string{"img-4"}})
	env.store.AddFace(database.Face{ID: "face-3", UserID: "alice", Name: strPtr("Bob"), ImageRefs: []string{"img-2", "img-3", "img-gone"}})

	images, err := env.svc.PersonImages(context.Background(), "alice", "  Bob ")
	if err != nil {
		t.Fatalf("PersonImages failed: %v", err)
	}

	var ids []string
	for _, img := range images {
		ids = append(ids, img.ID)
	}
	expected := []string{"img-1", "img-2", "img-3"}
	if len(ids) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, ids)
	}
	for i := range expected {
		if ids[i] != expected[i] {
			t.Errorf("expected %v, got %v", expected, ids)
			break
		}
	}
}

func TestPersonImages_NotFound(t *testing.T) {
	env := newTestEnv(t, config.MatchingConfig{})
	env.store.AddFace(database.Face{ID: "face-1", UserID: "alice", Name: strPtr("Bob")})
	env.store.AddFace(database.Face{ID: "face-2", UserID: "bob", Name: strPtr("Dave")})

	for _, name := range []string{"Dave", "bob", "Nobody"} {
		_, err := env.svc.PersonImages(context.Background(), "alice", name)
		if !errors.Is(err, ErrPersonNotFound) {
			t.Errorf("PersonImages(%q): expected ErrPersonNotFound, got %v", name, err)
		}
	}
}

func TestPersonImages_FaceWithoutImages(t *testing.T) {
	env := newTestEnv(t, config.MatchingConfig{})
	env.store.AddFace(database.Face{ID: "face-1", UserID: "alice", Name: strPtr("Bob")})

	images, err := env.svc.PersonImages(context.Background(), "alice", "Bob")
	if err != nil {
		t.Fatalf("PersonImages failed: %v", err)
	}
	if images == nil || len(images) != 0 {
		t.Errorf("expected empty non-nil list, got %v", images)
	}
}

func TestUserFaces(t *testing.T) {
	env := newTestEnv(t, config.MatchingConfig{})
	env.store.AddFace(database.Face{ID: "face-1", UserID: "alice", Name: strPtr("Bob")})
	env.store.AddFace(database.Face{ID: "face-2", UserID: "bob", Name: strPtr("Dave")})
	env.store.AddFace(database.Face{ID: "face-3", UserID: "alice"})

	faces, err := env.svc.UserFaces(context.Background(), "alice")
	if err != nil {
		t.Fatalf("UserFaces failed: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(faces))
	}
	if faces[0].FaceID != "face-1" || faces[0].Name == nil || *faces[0].Name != "Bob" {
		t.Errorf("unexpected first face %+v", faces[0])
	}
	if faces[1].FaceID != "face-3" || faces[1].Name != nil {
		t.Errorf("unexpected second face %+v", faces[1])
	}

	empty, err := env.svc.UserFaces(context.Background(), "carol")
	if err != nil {
		t.Fatalf("UserFaces failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil list, got %v", empty)
	}
}
