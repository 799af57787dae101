// Package envelope implements the unit of telemetry submission: a
// header line followed by one or more items, each an item header line
// and a payload line, all newline-delimited JSON. Once an envelope is
// handed to the transport it must not be mutated; ownership transfers
// to the delivery worker.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Item types understood by the ingestion endpoint. The transport treats
// them opaquely; they only matter for rate-limit categorization.
const (
	ItemTypeEvent       = "event"
	ItemTypeTransaction = "transaction"
	ItemTypeSession     = "session"
	ItemTypeAttachment  = "attachment"
	ItemTypeCheckIn     = "check_in"
)

// Header is the envelope-level header.
type Header struct {
	EventID string    `json:"event_id,omitempty"`
	SentAt  time.Time `json:"sent_at"`
	DSN     string    `json:"dsn,omitempty"`
}

// ItemHeader describes a single item.
type ItemHeader struct {
	Type   string `json:"type"`
	Length int    `json:"length"`
}

// Item is one payload inside an envelope.
type Item struct {
	Type    string
	Payload []byte
}

// Envelope is an ordered collection of items plus a header.
type Envelope struct {
	Header Header
	Items  []Item

	// raw holds pre-serialized bytes for envelopes recovered from the
	// spool; when set, Serialize returns it verbatim.
	raw []byte
}

// New creates an empty envelope stamped with the current time.
func New(eventID string) *Envelope {
	return &Envelope{
		Header: Header{
			EventID: eventID,
			SentAt:  time.Now().UTC(),
		},
	}
}

// FromBytes wraps already-serialized envelope bytes, e.g. when replaying
// from the overflow spool. The content is passed through untouched.
func FromBytes(raw []byte) *Envelope {
	return &Envelope{raw: raw}
}

// AddItem appends an item. The payload must be a complete, serialized
// body; the envelope does not inspect it.
func (e *Envelope) AddItem(itemType string, payload []byte) {
	e.Items = append(e.Items, Item{Type: itemType, Payload: payload})
}

// PrimaryType returns the type of the first item, which determines the
// rate-limit category of the whole envelope. Empty for raw envelopes.
func (e *Envelope) PrimaryType() string {
	if len(e.Items) == 0 {
		return ""
	}
	return e.Items[0].Type
}

// Serialize renders the envelope to its wire form. An envelope with no
// items is malformed; the error is recoverable and aborts only the one
// submission it belongs to.
func (e *Envelope) Serialize() ([]byte, error) {
	if e.raw != nil {
		return e.raw, nil
	}
	var buf bytes.Buffer
	if _, err := e.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo writes the wire form of the envelope to w.
func (e *Envelope) WriteTo(w io.Writer) (int64, error) {
	if e.raw != nil {
		n, err := w.Write(e.raw)
		return int64(n), err
	}
	if len(e.Items) == 0 {
		return 0, fmt.Errorf("envelope has no items")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(e.Header); err != nil {
		return 0, fmt.Errorf("failed to encode envelope header: %w", err)
	}
	for _, item := range e.Items {
		header := ItemHeader{Type: item.Type, Length: len(item.Payload)}
		if err := enc.Encode(header); err != nil {
			return 0, fmt.Errorf("failed to encode item header: %w", err)
		}
		buf.Write(item.Payload)
		buf.WriteByte('\n')
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}
