package project

import (
	"bytes"
	"context"
	"encoding/json"
)

// Metadata is the free-form key/value container stored on a project record.
type Metadata map[string]any

// Clone returns a deep copy of m. Values are expected to be JSON-shaped.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		out := make(Metadata, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	out, err := DecodeMetadata(raw)
	if err != nil {
		return Metadata{}
	}
	return out
}

// DecodeMetadata parses a JSON object into Metadata. Numbers are kept as
// json.Number so counters above 2^53 survive a round trip.
func DecodeMetadata(raw []byte) (Metadata, error) {
	out := Metadata{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		out = Metadata{}
	}
	return out, nil
}

// Record is a project row as seen by the context subsystem.
type Record struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Metadata  Metadata `json:"metadata"`
	Version   int64    `json:"version"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
}

// CreateInput holds the parameters for creating a project record.
type CreateInput struct {
	ID       string   `json:"id,omitempty"`
	Name     string   `json:"name"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Repository is the get/update-by-id surface the context subsystem needs
// from the project record store.
//
// Get returns perrors.ErrNotFound for unknown ids. UpdateMetadata replaces
// the whole metadata object only if the record is still at version; a stale
// version yields perrors.ErrConflict. Driver failures wrap
// perrors.ErrUnavailable.
type Repository interface {
	Get(ctx context.Context, id string) (*Record, error)
	UpdateMetadata(ctx context.Context, id string, metadata Metadata, version int64) error
}
