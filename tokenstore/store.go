// Package tokenstore persists session credentials under a per-variant key namespace.
//
// A Store writes through to a Backend (memory, SQLite or Redis) and mirrors the access
// token into the HeaderSink it was built with, so the owning session's HTTP client is
// authenticated without extra plumbing. The sink is an explicit constructor argument;
// there is no process wide default header.
package tokenstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/internal/logging"
)

// Policy is the persistence policy of a session variant.
type Policy int

const (
	// Persistent survives restarts and is shared by every process using the same backend.
	Persistent Policy = iota
	// Ephemeral lives as long as the terminal session and is wiped on reset.
	Ephemeral
)

func (p Policy) String() string {
	switch p {
	case Persistent:
		return "persistent"
	case Ephemeral:
		return "ephemeral"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// Key is a logical credential key. The store prefixes it with its namespace.
type Key string

const (
	KeyAccess  Key = "token"
	KeyRefresh Key = "refresh"
	KeyUser    Key = "user"
)

// Namespaces used by the two session variants.
const (
	PrimaryPrefix = ""
	KioskPrefix   = "kiosk_"
)

// Backend is the raw key/value persistence used by a Store.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Purger is implemented by backends able to drop a whole namespace.
type Purger interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

// HeaderSink receives the access token whenever the store writes or clears it.
type HeaderSink interface {
	SetBearer(access string)
	ClearBearer()
}

// Record is the full set of persisted credentials.
type Record struct {
	Access  string
	Refresh string
	User    string // JSON serialized identity
}

// Empty reports whether no credential is present.
func (r Record) Empty() bool {
	return r.Access == "" && r.Refresh == "" && r.User == ""
}

// Store is a namespaced view over a Backend.
type Store struct {
	backend Backend
	prefix  string
	policy  Policy
	sink    HeaderSink
	log     zerolog.Logger
}

// Option defines a function type to modify the Store instance.
type Option func(*Store)

// WithHeaderSink sets the sink updated on every access token write or clear.
func WithHeaderSink(sink HeaderSink) Option {
	return func(s *Store) {
		s.sink = sink
	}
}

// WithLogger sets the store logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// New binds a backend to a namespace and policy.
func New(backend Backend, prefix string, policy Policy, options ...Option) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("[tokenstore.New] backend is required")
	}
	s := &Store{
		backend: backend,
		prefix:  prefix,
		policy:  policy,
		log:     logging.Component("tokenstore"),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Policy returns the persistence policy.
func (s *Store) Policy() Policy {
	return s.policy
}

// Prefix returns the key namespace.
func (s *Store) Prefix() string {
	return s.prefix
}

// Name returns the namespaced backend key for a logical key.
func (s *Store) Name(key Key) string {
	return s.prefix + string(key)
}

// Get returns the value for key. A missing key is ErrNotFound.
func (s *Store) Get(ctx context.Context, key Key) (string, error) {
	v, ok, err := s.backend.Get(ctx, s.Name(key))
	if err != nil {
		return "", fmt.Errorf("get %s: %w", s.Name(key), err)
	}
	if !ok {
		return "", fmt.Errorf("get %s: %w", s.Name(key), apperrors.ErrNotFound)
	}
	return v, nil
}

// Set writes a value. Writing the access key also updates the header sink.
func (s *Store) Set(ctx context.Context, key Key, value string) error {
	if err := s.backend.Set(ctx, s.Name(key), value); err != nil {
		return fmt.Errorf("set %s: %w", s.Name(key), err)
	}
	if key == KeyAccess && s.sink != nil {
		s.sink.SetBearer(value)
	}
	return nil
}

// Clear removes every credential in the namespace and clears the header sink.
// The sink is cleared even when the backend fails: in memory the session is gone either way.
func (s *Store) Clear(ctx context.Context) error {
	if s.sink != nil {
		defer s.sink.ClearBearer()
	}

	if err := s.backend.Delete(ctx, s.Name(KeyAccess), s.Name(KeyRefresh), s.Name(KeyUser)); err != nil {
		return fmt.Errorf("clear %q: %w", s.prefix, err)
	}

	if s.policy == Ephemeral && s.prefix != "" {
		if p, ok := s.backend.(Purger); ok {
			if err := p.DeletePrefix(ctx, s.prefix); err != nil {
				return fmt.Errorf("purge %q: %w", s.prefix, err)
			}
		}
	}
	s.log.Debug().Str("namespace", s.prefix).Stringer("policy", s.policy).Msg("credentials cleared")
	return nil
}

// Load reads all credentials.
func (s *Store) Load(ctx context.Context) (Record, error) {
	var r Record
	for key, dst := range map[Key]*string{KeyAccess: &r.Access, KeyRefresh: &r.Refresh, KeyUser: &r.User} {
		v, err := s.Get(ctx, key)
		if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			return Record{}, err
		}
		*dst = v
	}
	return r, nil
}

// Save writes all credentials in the order user, refresh, access. The keys are written one
// by one, so another process can read a record mid-update: once it sees the new refresh
// token it also sees the new user, which no longer matches the old access token. The
// access token goes last so the header sink only sees it once the rest is durable.
func (s *Store) Save(ctx context.Context, r Record) error {
	if r.User != "" {
		if err := s.Set(ctx, KeyUser, r.User); err != nil {
			return err
		}
	} else if err := s.backend.Delete(ctx, s.Name(KeyUser)); err != nil {
		return fmt.Errorf("delete %s: %w", s.Name(KeyUser), err)
	}
	if err := s.Set(ctx, KeyRefresh, r.Refresh); err != nil {
		return err
	}
	return s.Set(ctx, KeyAccess, r.Access)
}
