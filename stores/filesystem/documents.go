package filesystem

import (
	"context"
	"docsync-server/core"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type documentStore struct {
	basePath string
	// guards read-modify-write cycles of Update
	mu sync.Mutex
}

// NewDocumentStore creates a filesystem-backed store keeping one JSON file per document.
func NewDocumentStore(basePath string) (*documentStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &documentStore{basePath: basePath}, nil
}

func (s *documentStore) documentPath(id string) (string, error) {
	if id == "" || filepath.Base(id) != id || id == "." || id == ".." {
		return "", fmt.Errorf("invalid document id %q", id)
	}

	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", err
	}
	absFile, err := filepath.Abs(filepath.Join(s.basePath, id+".json"))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: access denied")
	}
	return absFile, nil
}

func (s *documentStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)

	filePath, err := s.documentPath(id)
	if err != nil {
		log.WithError(err).Warn("Rejected document id")
		return nil, fmt.Errorf("document with id %s: %w", id, core.ErrDocumentNotFound)
	}

	log.WithField("file_path", filePath).Debug("Retrieving document by ID")
	document, err := s.read(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("error", "document not found").Warn("Document with specified ID not found")
			return nil, fmt.Errorf("document with id %s: %w", id, core.ErrDocumentNotFound)
		}
		log.WithError(err).Error("Failed to retrieve document")
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	log.Debug("Document retrieved successfully")
	return document, nil
}

func (s *documentStore) Create(ctx context.Context, document *core.Document) (string, error) {
	id := ulid.Make().String()
	filePath, err := s.documentPath(id)
	if err != nil {
		return "", err
	}
	log := logrus.WithFields(logrus.Fields{
		"document_id": id,
		"file_path":   filePath,
	})

	now := time.Now().UTC()
	doc := *document
	doc.ID = id
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if err := s.write(filePath, &doc); err != nil {
		log.WithError(err).Error("Failed to create document")
		return "", fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	log.Info("Document created successfully")
	return id, nil
}

func (s *documentStore) Update(ctx context.Context, id string, update core.DocumentUpdate) error {
	log := logrus.WithField("document_id", id)

	filePath, err := s.documentPath(id)
	if err != nil {
		return fmt.Errorf("document with id %s: %w", id, core.ErrDocumentNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	document, err := s.read(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("error", "document not found").Warn("Cannot update missing document")
			return fmt.Errorf("document with id %s: %w", id, core.ErrDocumentNotFound)
		}
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	if !update.ApplyTo(document) {
		return nil
	}
	document.UpdatedAt = time.Now().UTC()

	if err := s.write(filePath, document); err != nil {
		log.WithError(err).Error("Failed to update document")
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	log.Debug("Document updated successfully")
	return nil
}

func (s *documentStore) read(filePath string) (*core.Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var document core.Document
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	return &document, nil
}

// write replaces the file atomically so a reader never sees a partial document.
func (s *documentStore) write(filePath string, document *core.Document) error {
	data, err := json.Marshal(document)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filePath)
}
