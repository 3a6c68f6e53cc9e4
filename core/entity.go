package core

import (
	"context"
	"encoding/json"
	"time"
)

const (
	DefaultDocumentTitle = "Untitled Document"
)

// DefaultDocumentContent is the empty rich-text delta a new document starts with.
var DefaultDocumentContent = json.RawMessage(`[{"insert":"\n"}]`)

type (
	// Document is the durable record of a collaborative document.
	Document struct {
		ID        string          `json:"id"`
		Title     string          `json:"title"`
		Content   json.RawMessage `json:"content,omitempty"`
		CreatorID string          `json:"creatorId,omitempty"`
		CreatedAt time.Time       `json:"createdAt"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}

	// DocumentUpdate is a partial update. Nil fields are left unchanged.
	DocumentUpdate struct {
		Title   *string
		Content json.RawMessage
	}

	// DocumentStore is the persistence gateway for document records.
	DocumentStore interface {
		// FindID loads a document. Returns ErrDocumentNotFound for unknown ids.
		FindID(ctx context.Context, id string) (*Document, error)
		// Update applies a partial update. Returns ErrDocumentNotFound for unknown ids.
		Update(ctx context.Context, id string, update DocumentUpdate) error
		// Create stores a new document and returns its id.
		Create(ctx context.Context, document *Document) (string, error)
	}

	Room struct {
		ID         string
		LastActive int64
	}

	RoomRegistry interface {
		ListRooms(ctx context.Context) ([]Room, error)
		TouchRoom(ctx context.Context, roomID string) error
	}

	// Cache is the key/value store holding the latest content of each room
	// between persistence flushes.
	Cache interface {
		// Get returns ErrCacheMiss when the key is absent or expired.
		Get(ctx context.Context, key string) ([]byte, error)
		// Set stores value under key. A ttl <= 0 means the entry never expires.
		Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
		// Del and Exists complete the adapter contract. The engine does not
		// call them.
		Del(ctx context.Context, key string) error
		Exists(ctx context.Context, key string) (bool, error)
		// Expire resets the lifetime of an existing key. A ttl <= 0 removes
		// the expiry; a missing key is not an error.
		Expire(ctx context.Context, key string, ttl time.Duration) error
		Close() error
	}

	// Claims is what an authenticated connection is known by.
	Claims struct {
		Subject string
		Email   string
		Name    string
	}

	TokenVerifier interface {
		Verify(token string) (*Claims, error)
	}
)

// ApplyTo merges the update into document and reports whether anything changed.
func (u DocumentUpdate) ApplyTo(document *Document) bool {
	changed := false
	if u.Title != nil {
		document.Title = *u.Title
		changed = true
	}
	if u.Content != nil {
		document.Content = append(json.RawMessage(nil), u.Content...)
		changed = true
	}
	return changed
}

// NewDocument fills in the defaults for a freshly created record.
func NewDocument(title string, content json.RawMessage, creatorID string) *Document {
	if title == "" {
		title = DefaultDocumentTitle
	}
	if len(content) == 0 {
		content = DefaultDocumentContent
	}
	return &Document{
		Title:     title,
		Content:   content,
		CreatorID: creatorID,
	}
}
