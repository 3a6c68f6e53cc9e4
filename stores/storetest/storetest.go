// Package storetest holds behaviour shared by every core.DocumentStore
// implementation so each backend runs the same checks.
package storetest

import (
	"context"
	"docsync-server/core"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

// Run exercises the persistence gateway contract against a fresh store
// returned by newStore for every subtest.
func Run(t *testing.T, newStore func(t *testing.T) core.DocumentStore) {
	t.Helper()

	t.Run("CreateThenFind", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		id, err := store.Create(ctx, core.NewDocument("X", json.RawMessage(`"hello"`), "user-1"))
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		if id == "" {
			t.Fatal("Create() returned empty ID")
		}
		if len(id) != 26 {
			t.Errorf("Create() returned invalid ID length: got %d, want 26", len(id))
		}

		doc, err := store.FindID(ctx, id)
		if err != nil {
			t.Fatalf("FindID() failed: %v", err)
		}
		if doc.ID != id {
			t.Errorf("ID mismatch: got %q, want %q", doc.ID, id)
		}
		if doc.Title != "X" {
			t.Errorf("Title mismatch: got %q, want %q", doc.Title, "X")
		}
		if string(doc.Content) != `"hello"` {
			t.Errorf("Content mismatch: got %s", doc.Content)
		}
		if doc.CreatorID != "user-1" {
			t.Errorf("CreatorID mismatch: got %q", doc.CreatorID)
		}
	})

	t.Run("FindIDNotFound", func(t *testing.T) {
		store := newStore(t)

		_, err := store.FindID(context.Background(), "01ARZ3NDEKTSV4RRFFQ69G5FAV")
		if !errors.Is(err, core.ErrDocumentNotFound) {
			t.Errorf("FindID() error = %v, want ErrDocumentNotFound", err)
		}
	})

	t.Run("UpdateContentKeepsTitle", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		id, err := store.Create(ctx, core.NewDocument("X", json.RawMessage(`"hello"`), ""))
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		err = store.Update(ctx, id, core.DocumentUpdate{Content: json.RawMessage(`"hello world"`)})
		if err != nil {
			t.Fatalf("Update() failed: %v", err)
		}

		doc, err := store.FindID(ctx, id)
		if err != nil {
			t.Fatalf("FindID() failed: %v", err)
		}
		if string(doc.Content) != `"hello world"` {
			t.Errorf("Content mismatch: got %s", doc.Content)
		}
		if doc.Title != "X" {
			t.Errorf("Title changed unexpectedly: got %q", doc.Title)
		}
	})

	t.Run("UpdateTitleKeepsContent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		id, err := store.Create(ctx, core.NewDocument("X", json.RawMessage(`{"ops":[1]}`), ""))
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		title := "Renamed"
		if err := store.Update(ctx, id, core.DocumentUpdate{Title: &title}); err != nil {
			t.Fatalf("Update() failed: %v", err)
		}

		doc, err := store.FindID(ctx, id)
		if err != nil {
			t.Fatalf("FindID() failed: %v", err)
		}
		if doc.Title != "Renamed" {
			t.Errorf("Title mismatch: got %q", doc.Title)
		}
		if string(doc.Content) != `{"ops":[1]}` {
			t.Errorf("Content changed unexpectedly: got %s", doc.Content)
		}
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		store := newStore(t)

		err := store.Update(context.Background(), "01ARZ3NDEKTSV4RRFFQ69G5FAV", core.DocumentUpdate{Content: json.RawMessage(`"x"`)})
		if !errors.Is(err, core.ErrDocumentNotFound) {
			t.Errorf("Update() error = %v, want ErrDocumentNotFound", err)
		}
	})

	t.Run("DataIntegrity", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		testCases := []struct {
			name    string
			content string
		}{
			{"String", `"Hello World"`},
			{"UTF-8", `"Hello 世界 🌍"`},
			{"Delta", `[{"insert":"a"},{"insert":"b","attributes":{"bold":true}}]`},
			{"Escapes", `"line1\nline2\t\"quoted\""`},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				id, err := store.Create(ctx, core.NewDocument("", json.RawMessage(tc.content), ""))
				if err != nil {
					t.Fatalf("Create() failed: %v", err)
				}

				doc, err := store.FindID(ctx, id)
				if err != nil {
					t.Fatalf("FindID() failed: %v", err)
				}
				if string(doc.Content) != tc.content {
					t.Errorf("Data integrity failed: got %s, want %s", doc.Content, tc.content)
				}
			})
		}
	})

	t.Run("ConcurrentUpdates", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		id, err := store.Create(ctx, core.NewDocument("", nil, ""))
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := store.Update(ctx, id, core.DocumentUpdate{Content: json.RawMessage(`"x"`)}); err != nil {
					t.Errorf("Concurrent Update() failed: %v", err)
				}
				if _, err := store.FindID(ctx, id); err != nil {
					t.Errorf("Concurrent FindID() failed: %v", err)
				}
			}()
		}
		wg.Wait()
	})
}

// RunRoomRegistry exercises the room registry capability.
func RunRoomRegistry(t *testing.T, newRegistry func(t *testing.T) core.RoomRegistry) {
	t.Helper()

	t.Run("TouchAndList", func(t *testing.T) {
		registry := newRegistry(t)
		ctx := context.Background()

		for _, id := range []string{"doc1", "doc2", "doc1"} {
			if err := registry.TouchRoom(ctx, id); err != nil {
				t.Fatalf("TouchRoom(%q) failed: %v", id, err)
			}
		}

		rooms, err := registry.ListRooms(ctx)
		if err != nil {
			t.Fatalf("ListRooms() failed: %v", err)
		}
		if len(rooms) != 2 {
			t.Fatalf("Expected 2 rooms, got %d", len(rooms))
		}
		for _, room := range rooms {
			if room.LastActive <= 0 {
				t.Errorf("Room %s has no last-active timestamp", room.ID)
			}
		}
	})

	t.Run("TouchEmptyID", func(t *testing.T) {
		registry := newRegistry(t)
		if err := registry.TouchRoom(context.Background(), ""); err == nil {
			t.Error("TouchRoom() should reject an empty room id")
		}
	})
}
