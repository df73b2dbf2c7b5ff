package events

import (
	"fmt"
	"time"

	"docqa-be/pkg/apperror"
)

const TypeDocumentChanged = "document.changed"

type DocumentAction string

const (
	DocumentIndexed DocumentAction = "indexed"
	DocumentUpdated DocumentAction = "updated"
	DocumentDeleted DocumentAction = "deleted"
)

func (a DocumentAction) Valid() bool {
	switch a {
	case DocumentIndexed, DocumentUpdated, DocumentDeleted:
		return true
	}
	return false
}

// DocumentChanged announces that a user's searchable corpus changed, so any
// cached search results for that owner or collection are stale.
type DocumentChanged struct {
	DocumentID   string         `json:"document_id"`
	UserID       string         `json:"user_id"`
	CollectionID string         `json:"collection_id,omitempty"`
	Action       DocumentAction `json:"action"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

func (e DocumentChanged) EventType() string { return TypeDocumentChanged }

func (e DocumentChanged) Timestamp() time.Time { return e.OccurredAt }

func (e DocumentChanged) Payload() map[string]interface{} {
	return map[string]interface{}{
		"document_id":   e.DocumentID,
		"user_id":       e.UserID,
		"collection_id": e.CollectionID,
		"action":        string(e.Action),
		"occurred_at":   e.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

// DocumentChangedFrom rebuilds the typed event from a bus event.
func DocumentChangedFrom(e Event) (DocumentChanged, error) {
	if dc, ok := e.(DocumentChanged); ok {
		return dc, nil
	}

	data := e.Payload()
	str := func(key string) string {
		v, _ := data[key].(string)
		return v
	}
	out := DocumentChanged{
		DocumentID:   str("document_id"),
		UserID:       str("user_id"),
		CollectionID: str("collection_id"),
		Action:       DocumentAction(str("action")),
		OccurredAt:   e.Timestamp(),
	}
	if ts, err := time.Parse(time.RFC3339Nano, str("occurred_at")); err == nil {
		out.OccurredAt = ts
	}

	if out.UserID == "" {
		return out, fmt.Errorf("%w: document event without user id", apperror.ErrValidation)
	}
	if !out.Action.Valid() {
		return out, fmt.Errorf("%w: unknown document action %q", apperror.ErrValidation, out.Action)
	}
	return out, nil
}
