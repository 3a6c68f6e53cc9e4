package documents

import (
	"bytes"
	"docsync-server/core"
	"docsync-server/middleware"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	DocumentCreateRequest struct {
		Title   string          `json:"title"`
		Content json.RawMessage `json:"content"`
	}

	DocumentCreateResponse struct {
		ID string `json:"id"`
	}
)

// HandleCreate stores a new document record. An empty body creates a
// document with the default title and content.
func HandleCreate(documentStore core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			logrus.WithError(err).Error("Failed to read request body")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to read request body"})
			return
		}
		defer r.Body.Close()

		var req DocumentCreateRequest
		if len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, map[string]string{"error": "Invalid request body"})
				return
			}
		}
		if string(req.Content) == "null" {
			req.Content = nil
		}

		var creatorID string
		if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
			creatorID = claims.Subject
		}

		id, err := documentStore.Create(r.Context(), core.NewDocument(req.Title, req.Content, creatorID))
		if err != nil {
			logrus.WithError(err).Error("Failed to save document")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to save document"})
			return
		}

		logrus.WithFields(logrus.Fields{
			"id":      id,
			"creator": creatorID,
		}).Info("Document created")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, DocumentCreateResponse{ID: id})
	}
}

func HandleGet(documentStore core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Document not found"})
			return
		}

		document, err := documentStore.FindID(r.Context(), id)
		if errors.Is(err, core.ErrDocumentNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Document not found"})
			return
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error": err,
				"id":    id,
			}).Error("Failed to load document")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to load document"})
			return
		}

		render.JSON(w, r, document)
	}
}
