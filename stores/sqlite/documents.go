package sqlite

import (
	"context"
	"database/sql"
	"docsync-server/core"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type documentStore struct {
	db *sql.DB
}

func NewDocumentStore(dataSourceName string) (*documentStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dataSourceName, err)
	}
	// sqlite allows a single writer; one connection avoids SQLITE_BUSY under concurrent flushes.
	db.SetMaxOpenConns(1)

	// Create documents table
	documentsTable := `CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content BLOB,
		creator_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err = db.Exec(documentsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}

	// Create rooms table
	roomsTable := `CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		last_active INTEGER NOT NULL
	);`
	if _, err = db.Exec(roomsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create rooms table: %w", err)
	}

	return &documentStore{db}, nil
}

func (s *documentStore) Close() error {
	return s.db.Close()
}

func (s *documentStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)
	log.Debug("Retrieving document by ID")

	var (
		document           core.Document
		content            []byte
		creatorID          sql.NullString
		createdAt, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, content, creator_id, created_at, updated_at FROM documents WHERE id = ?", id).
		Scan(&document.ID, &document.Title, &content, &creatorID, &createdAt, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.WithField("error", "document not found").Warn("Document with specified ID not found")
			return nil, fmt.Errorf("document with id %s: %w", id, core.ErrDocumentNotFound)
		}
		log.WithField("error", err).Error("Failed to retrieve document")
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	document.Content = json.RawMessage(content)
	document.CreatorID = creatorID.String
	document.CreatedAt = time.UnixMilli(createdAt).UTC()
	document.UpdatedAt = time.UnixMilli(updated).UTC()

	log.Debug("Document retrieved successfully")
	return &document, nil
}

func (s *documentStore) Create(ctx context.Context, document *core.Document) (string, error) {
	id := ulid.Make().String()
	now := time.Now().UnixMilli()
	log := logrus.WithFields(logrus.Fields{
		"document_id":    id,
		"content_length": len(document.Content),
	})

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO documents (id, title, content, creator_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, document.Title, []byte(document.Content), document.CreatorID, now, now)
	if err != nil {
		log.WithField("error", err).Error("Failed to create document")
		return "", fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	log.Info("Document created successfully")
	return id, nil
}

func (s *documentStore) Update(ctx context.Context, id string, update core.DocumentUpdate) error {
	log := logrus.WithField("document_id", id)

	var title, content any
	if update.Title != nil {
		title = *update.Title
	}
	if update.Content != nil {
		content = []byte(update.Content)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE documents SET title = COALESCE(?, title), content = COALESCE(?, content), updated_at = ? WHERE id = ?",
		title, content, time.Now().UnixMilli(), id)
	if err != nil {
		log.WithField("error", err).Error("Failed to update document")
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	if rows == 0 {
		log.WithField("error", "document not found").Warn("Cannot update missing document")
		return fmt.Errorf("document with id %s: %w", id, core.ErrDocumentNotFound)
	}

	log.Debug("Document updated successfully")
	return nil
}

func (s *documentStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO rooms (id, last_active) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET last_active = excluded.last_active",
		roomID, time.Now().UnixMilli())
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Warn("Failed to touch room")
		return err
	}
	return nil
}

func (s *documentStore) ListRooms(ctx context.Context) ([]core.Room, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, last_active FROM rooms ORDER BY last_active DESC, id ASC")
	if err != nil {
		logrus.WithField("error", err).Error("Failed to list rooms")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("Failed to close room rows")
		}
	}()

	var rooms []core.Room
	for rows.Next() {
		var room core.Room
		if err := rows.Scan(&room.ID, &room.LastActive); err != nil {
			logrus.WithField("error", err).Error("Failed to scan room")
			continue
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
