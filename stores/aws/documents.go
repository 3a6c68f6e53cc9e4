package aws

import (
	"bytes"
	"context"
	"docsync-server/core"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const documentPrefix = "documents/"

// objectAPI is the subset of the S3 client the store uses.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3Store struct {
	client objectAPI
	bucket string
	// serialises read-modify-write in Update within this process
	mu sync.Mutex
}

// NewDocumentStore creates an S3-backed store. A non-empty endpoint switches
// to path-style addressing for S3 compatible services.
func NewDocumentStore(ctx context.Context, bucketName, endpoint string) (*s3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return newStore(client, bucketName), nil
}

func newStore(client objectAPI, bucketName string) *s3Store {
	return &s3Store{
		client: client,
		bucket: bucketName,
	}
}

func (s *s3Store) documentKey(id string) (string, error) {
	// Sanitize id to prevent path traversal. It should be a simple name, not a path.
	if id == "" || id == "." || id == ".." || path.Base(id) != id {
		return "", fmt.Errorf("invalid document id %q", id)
	}
	return documentPrefix + id + ".json", nil
}

func (s *s3Store) FindID(ctx context.Context, id string) (*core.Document, error) {
	key, err := s.documentKey(id)
	if err != nil {
		return nil, fmt.Errorf("document with id %s: %w", id, core.ErrDocumentNotFound)
	}
	return s.get(ctx, id, key)
}

func (s *s3Store) get(ctx context.Context, id, key string) (*core.Document, error) {
	log := logrus.WithFields(logrus.Fields{"document_id": id, "bucket": s.bucket})

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			log.WithField("error", "document not found").Warn("Document with specified ID not found")
			return nil, fmt.Errorf("document with id %s: %w", id, core.ErrDocumentNotFound)
		}
		log.WithError(err).Error("Failed to get document")
		return nil, fmt.Errorf("%w: get document %s: %v", core.ErrStoreUnavailable, id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read document %s: %v", core.ErrStoreUnavailable, id, err)
	}

	var document core.Document
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document %s: %w", id, err)
	}
	return &document, nil
}

func (s *s3Store) put(ctx context.Context, key string, document *core.Document) error {
	data, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", core.ErrStoreUnavailable, key, err)
	}
	return nil
}

func (s *s3Store) Create(ctx context.Context, document *core.Document) (string, error) {
	id := ulid.Make().String()
	key, err := s.documentKey(id)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	doc := *document
	doc.ID = id
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if err := s.put(ctx, key, &doc); err != nil {
		logrus.WithField("document_id", id).WithError(err).Error("Failed to create document")
		return "", err
	}

	logrus.WithField("document_id", id).Info("Document created successfully")
	return id, nil
}

func (s *s3Store) Update(ctx context.Context, id string, update core.DocumentUpdate) error {
	key, err := s.documentKey(id)
	if err != nil {
		return fmt.Errorf("document with id %s: %w", id, core.ErrDocumentNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	document, err := s.get(ctx, id, key)
	if err != nil {
		return err
	}
	if !update.ApplyTo(document) {
		return nil
	}
	document.UpdatedAt = time.Now().UTC()

	if err := s.put(ctx, key, document); err != nil {
		logrus.WithField("document_id", id).WithError(err).Error("Failed to update document")
		return err
	}
	return nil
}
