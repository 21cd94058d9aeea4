// Package store persists the awards document against a remote that only
// supports whole-blob reads and conditional whole-blob writes. The Store
// wrapper turns the remote's version conflicts into a bounded
// reload-merge-retry loop so callers see either a committed write or an
// explicit failure.
package store

import (
	"context"
	"errors"
	"fmt"

	"awards/bot/internal/document"
)

// Version is the remote's opaque revision token. The empty version means the
// object does not exist yet and the next save creates it.
type Version string

var (
	// ErrNotFound is returned by Remote.Load when the object does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned by Remote.Save when the supplied version no
	// longer matches the remote head.
	ErrConflict = errors.New("version conflict")
	// ErrUnavailable wraps a save that exhausted its conflict retries or a
	// transport failure; the in-memory document must not be assumed
	// committed.
	ErrUnavailable = errors.New("document store unavailable")
)

// Remote transports the whole document as one opaque blob per call. There is
// no partial-field update primitive.
type Remote interface {
	Load(ctx context.Context) (document.Document, Version, error)
	Save(ctx context.Context, doc document.Document, version Version) (Version, error)
}

// maxSaveAttempts bounds the conflict-retry loop. Matches the original
// deployment's six tries before giving up.
const maxSaveAttempts = 6

type Store struct {
	remote Remote
}

func New(remote Remote) *Store {
	return &Store{remote: remote}
}

// Load fetches the current document. A fresh remote gets the default empty
// document persisted so the first returned version is always committable.
func (s *Store) Load(ctx context.Context) (document.Document, Version, error) {
	doc, version, err := s.remote.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		doc = document.Default()
		version, err = s.remote.Save(ctx, doc, "")
		if err != nil {
			return document.Document{}, "", fmt.Errorf("%w: create default document: %v", ErrUnavailable, err)
		}
		return doc, version, nil
	}
	if err != nil {
		return document.Document{}, "", fmt.Errorf("%w: load document: %v", ErrUnavailable, err)
	}
	doc.Normalize()
	return doc, version, nil
}

// Save commits doc against version. On a conflict the latest remote document
// is re-fetched and the caller's settings, active run and archive are
// re-applied on top of it before retrying: last writer wins for the three
// top-level fields this process owns. Concurrent writers mutating the same
// sub-field clobber each other; a single process is assumed to be the sole
// active writer and the retry only guards redeploy races.
func (s *Store) Save(ctx context.Context, doc document.Document, version Version) (Version, error) {
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		next, err := s.remote.Save(ctx, doc, version)
		if err == nil {
			incSave()
			return next, nil
		}
		if !errors.Is(err, ErrConflict) {
			return "", fmt.Errorf("%w: save document: %v", ErrUnavailable, err)
		}
		incConflict()
		lastErr = err

		latest, latestVersion, err := s.remote.Load(ctx)
		if errors.Is(err, ErrNotFound) {
			latest, latestVersion = document.Default(), ""
		} else if err != nil {
			return "", fmt.Errorf("%w: reload after conflict: %v", ErrUnavailable, err)
		}
		latest.Normalize()
		latest.Settings = doc.Settings
		latest.Active = doc.Active
		latest.Archive = doc.Archive
		doc, version = latest, latestVersion
	}
	incExhausted()
	return "", fmt.Errorf("%w: save retries exhausted: %v", ErrUnavailable, lastErr)
}

// Ping verifies the remote answers at all.
func (s *Store) Ping(ctx context.Context) error {
	_, _, err := s.remote.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
