// Package models declares the wire types shared with the metadata service.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timestampLayout is the service's timestamp format: UTC offset with
// microsecond precision, e.g. "2021-02-03T21:21:57.713584+00:00".
const timestampLayout = "2006-01-02T15:04:05.000000-07:00"

// Timestamp is a time.Time that marshals in the metadata service's
// microsecond-precision format.
type Timestamp struct {
	time.Time
}

// NewTimestamp converts a time.Time, truncating to microseconds.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.Truncate(time.Microsecond)}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(timestampLayout))
}

// UnmarshalJSON implements json.Unmarshaler. PostgREST may drop trailing
// zeros from the fractional seconds, so RFC 3339 is accepted as a fallback.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp is not a JSON string: %w", err)
	}

	parsed, err := time.Parse(timestampLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}

	t.Time = parsed
	return nil
}

// Dataset is a logical collection of uploaded files. It is created empty
// and sealed by the upload-complete notification; its id is permanent once
// created.
type Dataset struct {
	ID          uuid.UUID       `json:"dataset_id"`
	SystemID    string          `json:"system_id"`
	CreatedDate Timestamp       `json:"created_date"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`

	// Files is populated by listings that embed the file rows
	// (select=*,files(*)).
	Files []UploadedFile `json:"files,omitempty"`
}

// UploadedFile is a registered object. A row exists only after the bytes
// are durably committed in the object store.
type UploadedFile struct {
	ID          uuid.UUID       `json:"file_id"`
	DatasetID   uuid.UUID       `json:"dataset_id"`
	CreatedDate Timestamp       `json:"created_date"`
	URL         string          `json:"url"`
	Filesize    int64           `json:"filesize"`
	Version     string          `json:"version"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}
