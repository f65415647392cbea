package hashchain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the millisecond UTC ISO-8601 form used inside canonical payloads.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t the way it is embedded in canonical payloads.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CustodyEvent is a user's first claim on a relationship with a contact.
type CustodyEvent struct {
	OwnerId       int64
	ContactId     int64
	EstablishedAt time.Time
}

type custodyPayload struct {
	OwnerId       int64  `json:"ownerId"`
	ContactId     int64  `json:"contactId"`
	EstablishedAt string `json:"establishedAt"`
	PrevHash      string `json:"prevHash"`
}

func (e CustodyEvent) Canonical(prevDigest string) ([]byte, error) {
	return json.Marshal(custodyPayload{
		OwnerId:       e.OwnerId,
		ContactId:     e.ContactId,
		EstablishedAt: FormatTimestamp(e.EstablishedAt),
		PrevHash:      prevDigest,
	})
}

// AuditEvent is an arbitrary entity mutation recorded on the global audit chain.
// PreviousState, NewState and Metadata hold raw JSON; they are re-encoded with
// sorted object keys so the caller's key order never leaks into the digest.
type AuditEvent struct {
	ActorId       *int64
	Action        string
	EntityType    string
	EntityId      *int64
	PreviousState json.RawMessage
	NewState      json.RawMessage
	Metadata      json.RawMessage
	CreatedAt     time.Time
}

type auditPayload struct {
	PrevHash      string          `json:"prevHash"`
	UserId        *int64          `json:"userId"`
	Action        string          `json:"action"`
	EntityType    string          `json:"entityType"`
	EntityId      *int64          `json:"entityId"`
	PreviousState json.RawMessage `json:"previousState"`
	NewState      json.RawMessage `json:"newState"`
	Metadata      json.RawMessage `json:"metadata"`
	CreatedAt     string          `json:"createdAt"`
}

func (e AuditEvent) Canonical(prevDigest string) ([]byte, error) {
	previous, err := normalizeJSON(e.PreviousState)
	if err != nil {
		return nil, fmt.Errorf("previousState: %w", err)
	}
	next, err := normalizeJSON(e.NewState)
	if err != nil {
		return nil, fmt.Errorf("newState: %w", err)
	}
	metadata, err := normalizeJSON(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}

	return json.Marshal(auditPayload{
		PrevHash:      prevDigest,
		UserId:        e.ActorId,
		Action:        e.Action,
		EntityType:    e.EntityType,
		EntityId:      e.EntityId,
		PreviousState: previous,
		NewState:      next,
		Metadata:      metadata,
		CreatedAt:     FormatTimestamp(e.CreatedAt),
	})
}

// normalizeJSON decodes raw and encodes it again. encoding/json writes map keys
// in sorted order, and UseNumber keeps numeric literals untouched.
func normalizeJSON(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return out, nil
}
