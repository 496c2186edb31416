// Package blobstore stores uploaded patient files. It defines the BlobStore
// interface, a disk-backed implementation laying files out per patient, and
// an in-memory implementation for tests.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound   = errors.New("blob not found")
	ErrFileTooLarge   = errors.New("file exceeds maximum allowed size")
	ErrInvalidFileExt = errors.New("file extension is not allowed")
)

// AllowedExtensions lists the upload file types accepted by the system.
var AllowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".pdf":  true,
	".csv":  true,
}

// Blob describes a stored file.
type Blob struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Hash string `json:"hash"`
}

// BlobStore defines the contract for upload storage backends. Save returns
// the storage path callers persist alongside their metadata; Open and Remove
// take that path back.
type BlobStore interface {
	Save(ctx context.Context, patientID uuid.UUID, prefix, fileName string, content io.Reader) (*Blob, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Remove(ctx context.Context, path string) error
}

// readAndHash drains content up to maxBytes and returns the data with its
// SHA-256 hash.
func readAndHash(content io.Reader, maxBytes int64) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(content, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", ErrFileTooLarge
	}
	h := sha256.Sum256(data)
	return data, fmt.Sprintf("%x", h), nil
}

func validateExt(fileName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !AllowedExtensions[ext] {
		return "", ErrInvalidFileExt
	}
	return ext, nil
}

// ---------------------------------------------------------------------------
// Disk implementation
// ---------------------------------------------------------------------------

// DiskStore stores blobs under root/patients/<patientID>/<prefix>-<ts><ext>.
type DiskStore struct {
	root     string
	maxBytes int64
}

// NewDiskStore returns a DiskStore rooted at root, rejecting files larger
// than maxBytes.
func NewDiskStore(root string, maxBytes int64) *DiskStore {
	return &DiskStore{root: root, maxBytes: maxBytes}
}

func (s *DiskStore) Save(_ context.Context, patientID uuid.UUID, prefix, fileName string, content io.Reader) (*Blob, error) {
	ext, err := validateExt(fileName)
	if err != nil {
		return nil, err
	}

	data, hash, err := readAndHash(content, s.maxBytes)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(s.root, "patients", patientID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create patient directory: %w", err)
	}

	name := fmt.Sprintf("%s-%d%s", prefix, time.Now().UnixMilli(), ext)
	rel := filepath.Join("patients", patientID.String(), name)
	if err := os.WriteFile(filepath.Join(s.root, rel), data, 0o644); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}

	return &Blob{Path: rel, Size: int64(len(data)), Hash: hash}, nil
}

func (s *DiskStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.Clean(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *DiskStore) Remove(_ context.Context, path string) error {
	err := os.Remove(filepath.Join(s.root, filepath.Clean(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// MemoryStore is a thread-safe, in-memory BlobStore for testing/dev.
type MemoryStore struct {
	mu       sync.RWMutex
	blobs    map[string][]byte
	maxBytes int64
}

// NewMemoryStore returns a ready-to-use MemoryStore.
func NewMemoryStore(maxBytes int64) *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte), maxBytes: maxBytes}
}

func (s *MemoryStore) Save(_ context.Context, patientID uuid.UUID, prefix, fileName string, content io.Reader) (*Blob, error) {
	ext, err := validateExt(fileName)
	if err != nil {
		return nil, err
	}

	data, hash, err := readAndHash(content, s.maxBytes)
	if err != nil {
		return nil, err
	}

	path := filepath.Join("patients", patientID.String(),
		fmt.Sprintf("%s-%s%s", prefix, uuid.New().String(), ext))

	s.mu.Lock()
	s.blobs[path] = data
	s.mu.Unlock()

	return &Blob{Path: path, Size: int64(len(data)), Hash: hash}, nil
}

// Len reports how many blobs the store holds.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

func (s *MemoryStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[path]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Remove(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[path]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, path)
	return nil
}
