package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestDiskStoreSaveOpenRemove(t *testing.T) {
	store := NewDiskStore(t.TempDir(), 1024)
	ctx := context.Background()
	patientID := uuid.New()

	blob, err := store.Save(ctx, patientID, "document", "referto.pdf", strings.NewReader("pdf-bytes"))
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if blob.Size != int64(len("pdf-bytes")) {
		t.Errorf("Size = %d, want %d", blob.Size, len("pdf-bytes"))
	}
	if !strings.Contains(blob.Path, patientID.String()) {
		t.Errorf("Path %q should contain patient ID", blob.Path)
	}

	rc, err := store.Open(ctx, blob.Path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "pdf-bytes" {
		t.Errorf("content = %q, want pdf-bytes", data)
	}

	if err := store.Remove(ctx, blob.Path); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, err := store.Open(ctx, blob.Path); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("Open after Remove = %v, want ErrBlobNotFound", err)
	}
}

func TestDiskStoreRejectsDisallowedExtension(t *testing.T) {
	store := NewDiskStore(t.TempDir(), 1024)

	_, err := store.Save(context.Background(), uuid.New(), "document", "malware.exe", strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidFileExt) {
		t.Errorf("Save(.exe) = %v, want ErrInvalidFileExt", err)
	}
}

func TestDiskStoreRejectsOversizedFile(t *testing.T) {
	store := NewDiskStore(t.TempDir(), 8)

	_, err := store.Save(context.Background(), uuid.New(), "document", "big.csv", strings.NewReader("more-than-eight-bytes"))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Save(oversized) = %v, want ErrFileTooLarge", err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(1024)
	ctx := context.Background()

	blob, err := store.Save(ctx, uuid.New(), "analisi", "esami.csv", strings.NewReader("Esame;Valore\n"))
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	rc, err := store.Open(ctx, blob.Path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "Esame;Valore\n" {
		t.Errorf("content = %q", data)
	}

	if err := store.Remove(ctx, blob.Path); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if err := store.Remove(ctx, blob.Path); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("second Remove = %v, want ErrBlobNotFound", err)
	}
}
