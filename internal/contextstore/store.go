package contextstore

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/contextd/internal/project"
	"github.com/p-blackswan/contextd/internal/retry"
)

// Change tells the Store which parts of a Snapshot a Mutation touched.
type Change struct {
	Context     bool
	Fired       bool
	Regenerated []string
}

// None reports whether nothing needs to be written.
func (c Change) None() bool {
	return !c.Context && !c.Fired && len(c.Regenerated) == 0
}

// Mutation edits a freshly read Snapshot. It may run more than once when a
// concurrent writer wins the race, so it must not keep state across calls.
type Mutation func(snap *Snapshot) (Change, error)

// Store reads and merge-writes project context through a project.Repository.
type Store struct {
	repo   project.Repository
	retry  retry.Config
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for metadata stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRetry overrides how version conflicts are retried.
func WithRetry(cfg retry.Config) Option {
	return func(s *Store) { s.retry = cfg }
}

// New creates a Store over repo.
func New(repo project.Repository, logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		retry:  retry.DefaultConfig(),
		now:    time.Now,
		logger: logger.With().Str("component", "contextstore").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's current time.
func (s *Store) Now() time.Time { return s.now() }

// Load reads and decodes the project's metadata.
func (s *Store) Load(ctx context.Context, projectID string) (*Snapshot, error) {
	r, err := s.repo.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(r)
}

// Get returns the stored context, or Default when none is stored yet.
func (s *Store) Get(ctx context.Context, projectID string) (*Context, error) {
	snap, err := s.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	c := snap.Context
	return &c, nil
}

// Update merges p over the current context and writes it back, stamping
// context_updated_at. Other metadata keys are preserved.
func (s *Store) Update(ctx context.Context, projectID string, p Partial) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.Mutate(ctx, projectID, func(snap *Snapshot) (Change, error) {
		p.Apply(&snap.Context)
		return Change{Context: true}, nil
	})
}

// Mutate runs fn against a fresh snapshot and writes the result with a
// version check, re-reading and re-running fn on conflict.
func (s *Store) Mutate(ctx context.Context, projectID string, fn Mutation) error {
	attempt := 0
	return retry.Do(ctx, s.retry, func(ctx context.Context) error {
		attempt++
		snap, err := s.Load(ctx, projectID)
		if err != nil {
			return err
		}
		change, err := fn(snap)
		if err != nil {
			return err
		}
		if change.None() {
			return nil
		}

		md := snap.encode(change.Context, change.Fired, change.Regenerated, s.now())
		if err := s.repo.UpdateMetadata(ctx, projectID, md, snap.Version); err != nil {
			s.logger.Debug().Err(err).Str("project_id", projectID).Int("attempt", attempt).Msg("metadata write failed")
			return err
		}
		return nil
	})
}
