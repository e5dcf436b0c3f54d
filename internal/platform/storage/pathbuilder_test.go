package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBuildMediaPath(t *testing.T) {
	id := uuid.MustParse("3f1c2f0e-9b8a-4c4e-8f10-2b5f6d7e8a90")
	path, err := BuildMediaPath(MediaPathParams{
		WallID:    "wal_01HZX",
		UploadAt:  time.UnixMilli(1714564800123),
		ObjectID:  id,
		Extension: ".JPG",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "wal_01HZX/1714564800123-3f1c2f0e-9b8a-4c4e-8f10-2b5f6d7e8a90.jpg"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildMediaPathGeneratesID(t *testing.T) {
	a, err := BuildMediaPath(MediaPathParams{WallID: "w", UploadAt: time.UnixMilli(1), Extension: "png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := BuildMediaPath(MediaPathParams{WallID: "w", UploadAt: time.UnixMilli(1), Extension: "png"})
	if a == b {
		t.Fatalf("expected distinct object names, got %s twice", a)
	}
}

func TestBuildMediaPathRejectsTraversal(t *testing.T) {
	cases := []MediaPathParams{
		{WallID: "../etc", UploadAt: time.UnixMilli(1), Extension: "png"},
		{WallID: "a/b", UploadAt: time.UnixMilli(1), Extension: "png"},
		{WallID: "", UploadAt: time.UnixMilli(1), Extension: "png"},
		{WallID: "w", UploadAt: time.UnixMilli(1), Extension: ""},
		{WallID: "w", UploadAt: time.UnixMilli(1), Extension: "p/ng"},
		{WallID: "w", Extension: "png"},
	}
	for _, params := range cases {
		if _, err := BuildMediaPath(params); err == nil {
			t.Fatalf("expected error for %+v", params)
		}
	}
}

func TestPublicURL(t *testing.T) {
	got := PublicURL("https://storage.googleapis.com/", "wall-media", "wal_1/17-abc.png")
	if got != "https://storage.googleapis.com/wall-media/wal_1/17-abc.png" {
		t.Fatalf("unexpected url %s", got)
	}
	if got := PublicURL("http://localhost:9199", "b", "w/a b.png"); got != "http://localhost:9199/b/w/a%20b.png" {
		t.Fatalf("expected escaped segment, got %s", got)
	}
}
