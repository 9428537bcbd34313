package contextstore

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	perrors "github.com/p-blackswan/contextd/internal/errors"
	"github.com/p-blackswan/contextd/internal/project"
)

// Metadata keys owned by this package. Everything else in the project
// metadata belongs to other writers and is carried through untouched.
const (
	KeyContextData            = "context_data"
	KeyContextUpdatedAt       = "context_updated_at"
	KeyFiredTriggers          = "fired_triggers"
	KeyPendingRegenerations   = "pending_regenerations"
	KeyCompletedRegenerations = "completed_regenerations"
	regeneratedAtSuffix       = "_regenerated_at"
)

// TimestampLayout is the format of every timestamp written into metadata.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// RegeneratedAtKey returns the metadata key stamped when triggerID is regenerated.
func RegeneratedAtKey(triggerID string) string {
	return triggerID + regeneratedAtSuffix
}

// Snapshot is one read of a project's metadata, decoded, plus the version
// it was read at. Mutations stay local until the Store writes them back.
type Snapshot struct {
	ProjectID string
	Version   int64
	Context   Context
	Fired     FiredState

	stored   bool
	metadata project.Metadata
}

// HasStoredContext reports whether the project had context_data persisted.
func (s *Snapshot) HasStoredContext() bool { return s.stored }

// Metadata returns the raw metadata as read.
func (s *Snapshot) Metadata() project.Metadata { return s.metadata }

// decodeSnapshot fails when context_data is present but not decodable, so a
// later write cannot replace unreadable counters with defaults.
func decodeSnapshot(r *project.Record) (*Snapshot, error) {
	md := r.Metadata
	if md == nil {
		md = project.Metadata{}
	}
	snap := &Snapshot{
		ProjectID: r.ID,
		Version:   r.Version,
		Context:   Default(r.ID),
		metadata:  md,
	}

	if raw, ok := md[KeyContextData]; ok && raw != nil {
		b, err := json.Marshal(raw)
		if err == nil {
			err = json.Unmarshal(b, &snap.Context)
		}
		if err != nil {
			return nil, perrors.Unavailable("decode context", r.ID, err)
		}
		snap.stored = true
		snap.Context.ProjectID = r.ID
	}

	snap.Fired = FiredState{
		Fired:     stringList(md[KeyFiredTriggers]),
		Pending:   stringList(md[KeyPendingRegenerations]),
		Completed: stringList(md[KeyCompletedRegenerations]),
	}
	for k, v := range md {
		if id, ok := strings.CutSuffix(k, regeneratedAtSuffix); ok && id != "" {
			if ts, ok := v.(string); ok {
				if snap.Fired.RegeneratedAt == nil {
					snap.Fired.RegeneratedAt = make(map[string]string)
				}
				snap.Fired.RegeneratedAt[id] = ts
			}
		}
	}
	return snap, nil
}

// encode writes the snapshot's owned keys over a copy of the original
// metadata. regenerated lists trigger ids to stamp at now.
func (s *Snapshot) encode(contextChanged, firedChanged bool, regenerated []string, now time.Time) project.Metadata {
	out := s.metadata.Clone()
	stamp := now.UTC().Format(TimestampLayout)

	if contextChanged {
		b, _ := json.Marshal(s.Context)
		data, _ := project.DecodeMetadata(b)
		out[KeyContextData] = map[string]any(data)
		out[KeyContextUpdatedAt] = stamp
	}
	if firedChanged {
		out[KeyFiredTriggers] = anyList(s.Fired.Fired)
		out[KeyPendingRegenerations] = anyList(s.Fired.Pending)
		out[KeyCompletedRegenerations] = anyList(s.Fired.Completed)
	}
	for _, id := range regenerated {
		out[RegeneratedAtKey(id)] = stamp
	}
	return out
}

// stringList decodes a JSON array of strings, dropping duplicates and
// anything that is not a string.
func stringList(v any) []string {
	out := []string{}
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok && !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range list {
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out
}

func anyList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
