package collab

import "encoding/json"

// Outbound event names.
const (
	EventLoad          = "load"
	EventChanges       = "changes"
	EventUserJoined    = "user_joined"
	EventUserLeft      = "user_left"
	EventSaveSuccess   = "save_success"
	EventDocumentSaved = "document_saved"
	EventError         = "error"
)

// Error event messages, one per failing operation.
const (
	MessageJoinFailed   = "Join failed"
	MessageTypingFailed = "Typing failed"
	MessageSaveFailed   = "Save failed"
	MessageLeaveFailed  = "Leave failed"
	MessageAuthFailed   = "Authentication failed"
)

// ChangesEvent is the room-scoped variant of EventChanges.
func ChangesEvent(room string) string { return EventChanges + ":" + room }

// SavedEvent is sent to every member of room after a save.
func SavedEvent(room string) string { return "saved:" + room }

type (
	EditMessage struct {
		Room    string          `json:"room"`
		Title   *string         `json:"title,omitempty"`
		Content json.RawMessage `json:"content"`
		Delta   json.RawMessage `json:"delta,omitempty"`
	}

	SaveMessage struct {
		Room string `json:"room"`
	}

	ChangePayload struct {
		ClientID string          `json:"clientId"`
		Room     string          `json:"room"`
		Title    *string         `json:"title,omitempty"`
		Content  json.RawMessage `json:"content"`
		Delta    json.RawMessage `json:"delta,omitempty"`
	}

	PresencePayload struct {
		ClientID string `json:"clientId"`
		Count    int    `json:"count"`
	}

	SavedPayload struct {
		DocumentID string `json:"documentId"`
		SavedBy    string `json:"savedBy"`
	}

	ErrorPayload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
)
