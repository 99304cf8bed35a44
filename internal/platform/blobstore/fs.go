package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileBlobStore persists blobs on the local filesystem. Content lives at
// <dir>/<id> and metadata in a <dir>/<id>.json sidecar. It is the backend
// the server runs with; the in-memory store covers tests.
type FileBlobStore struct {
	dir string
}

func NewFileBlobStore(dir string) (*FileBlobStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &FileBlobStore{dir: dir}, nil
}

func (s *FileBlobStore) contentPath(id string) string {
	return filepath.Join(s.dir, id)
}

func (s *FileBlobStore) metaPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	if meta.ContentType != "" && !AllowedContentTypes[meta.ContentType] {
		return nil, ErrInvalidContentType
	}

	meta.ID = uuid.New().String()
	meta.CreatedAt = time.Now().UTC()
	if meta.Category == "" || !AllowedCategories[meta.Category] {
		meta.Category = "other"
	}

	f, err := os.Create(s.contentPath(meta.ID))
	if err != nil {
		return nil, fmt.Errorf("creating blob file: %w", err)
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), io.LimitReader(content, MaxFileSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(s.contentPath(meta.ID))
		return nil, fmt.Errorf("writing blob content: %w", err)
	}
	if n > MaxFileSize {
		os.Remove(s.contentPath(meta.ID))
		return nil, ErrFileTooLarge
	}

	meta.Size = n
	meta.Hash = fmt.Sprintf("%x", h.Sum(nil))

	data, err := json.Marshal(meta)
	if err != nil {
		os.Remove(s.contentPath(meta.ID))
		return nil, err
	}
	if err := os.WriteFile(s.metaPath(meta.ID), data, 0o640); err != nil {
		os.Remove(s.contentPath(meta.ID))
		return nil, fmt.Errorf("writing blob metadata: %w", err)
	}

	out := meta
	return &out, nil
}

func (s *FileBlobStore) readMeta(id string) (*BlobMetadata, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	var meta BlobMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding blob metadata: %w", err)
	}
	return &meta, nil
}

func (s *FileBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	meta, err := s.readMeta(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.contentPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, err
	}
	return f, meta, nil
}

func (s *FileBlobStore) Delete(_ context.Context, id string) error {
	if _, err := s.readMeta(id); err != nil {
		return err
	}
	if err := os.Remove(s.contentPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Remove(s.metaPath(id))
}

func (s *FileBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	return s.readMeta(id)
}

func (s *FileBlobStore) ListByPatient(_ context.Context, patientID, category string, limit, offset int) ([]*BlobMetadata, int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, 0, err
	}

	var matched []*BlobMetadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		meta, err := s.readMeta(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		if meta.PatientID != patientID {
			continue
		}
		if category != "" && meta.Category != category {
			continue
		}
		matched = append(matched, meta)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if limit <= 0 {
		limit = 20
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}
