package repository

import (
	"context"
	"errors"
	"testing"

	"serial-bridge/internal/model"
)

func TestMemorySketchRepositorySaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySketchRepository()

	list, err := repo.List(ctx)
	if err != nil || list == nil || len(list) != 0 {
		t.Fatalf("Expected empty non-nil list, got %v, %v", list, err)
	}

	sketches := []model.Sketch{
		{Name: "blink.ino", Content: "void setup() {}", IsOpen: true},
		{Name: "serial.ino", Content: "Serial.begin(9600);"},
	}
	if err := repo.Save(ctx, sketches); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// the stored list must not alias the caller's slice
	sketches[0].Content = "changed"

	got, err := repo.Get(ctx, "blink.ino")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Content != "void setup() {}" || !got.IsOpen {
		t.Errorf("Unexpected sketch %+v", got)
	}

	if _, err := repo.Get(ctx, "missing.ino"); !errors.Is(err, ErrSketchNotFound) {
		t.Errorf("Expected ErrSketchNotFound, got %v", err)
	}

	list, _ = repo.List(ctx)
	if len(list) != 2 || list[1].Name != "serial.ino" {
		t.Errorf("Expected list in saved order, got %+v", list)
	}
}

func TestMemorySketchRepositoryRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySketchRepository(model.Sketch{Name: "keep.ino"})

	tests := []struct {
		name     string
		sketches []model.Sketch
	}{
		{"empty name", []model.Sketch{{Name: ""}}},
		{"duplicate name", []model.Sketch{{Name: "a.ino"}, {Name: "a.ino"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Save(ctx, tt.sketches); !errors.Is(err, ErrInvalidSketch) {
				t.Errorf("Expected ErrInvalidSketch, got %v", err)
			}
		})
	}

	// rejected saves leave the stored list untouched
	if _, err := repo.Get(ctx, "keep.ino"); err != nil {
		t.Errorf("Expected original sketch to remain, got %v", err)
	}
}

func TestMemorySketchRepositorySaveEmpty(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySketchRepository(model.Sketch{Name: "old.ino"})

	if err := repo.Save(ctx, []model.Sketch{}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	list, _ := repo.List(ctx)
	if len(list) != 0 {
		t.Errorf("Expected empty list, got %+v", list)
	}
}
