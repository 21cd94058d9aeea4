// Package app is the run lifecycle engine: it validates phase and
// permission for every incoming action, mutates the in-memory document, and
// funnels the result through the conflict-safe store. The chat platform
// itself stays behind the messenger interface.
package app

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"awards/bot/internal/access"
	"awards/bot/internal/config"
	"awards/bot/internal/document"
	"awards/bot/internal/search"
	"awards/bot/internal/session"
	"awards/bot/internal/store"
)

// documentStore is the persistence boundary. Implemented by *store.Store.
type documentStore interface {
	Load(ctx context.Context) (document.Document, store.Version, error)
	Save(ctx context.Context, doc document.Document, version store.Version) (store.Version, error)
	Ping(ctx context.Context) error
}

// messenger is the consumed slice of the chat platform: post and edit
// messages in a channel. Everything else about the platform (gateway, UI
// widgets, command registration) lives in the adapter, outside this module.
type messenger interface {
	Send(ctx context.Context, channelID, text string) (messageID string, err error)
	Edit(ctx context.Context, channelID, messageID, text string) error
}

type Service struct {
	cfg      config.Config
	store    documentStore
	sessions session.Store
	msg      messenger
	search   *search.Service

	// now is swappable in tests; every timestamp funnels through it.
	now func() time.Time
}

func New(cfg config.Config, st documentStore, sessions session.Store, msg messenger, searchSvc *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    st,
		sessions: sessions,
		msg:      msg,
		search:   searchSvc,
		now:      time.Now,
	}
}

// Ping reports whether the document store answers.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// mutate is the single load-validate-mutate-save funnel every write goes
// through. fn returning an error aborts before anything is persisted, so a
// rejected action is always a true no-op.
func (s *Service) mutate(ctx context.Context, fn func(doc *document.Document) error) error {
	doc, version, err := s.store.Load(ctx)
	if err != nil {
		return storeUnavailable(err)
	}
	if err := fn(&doc); err != nil {
		return err
	}
	if _, err := s.store.Save(ctx, doc, version); err != nil {
		return storeUnavailable(err)
	}
	return nil
}

// view runs a read-only function against the current document.
func (s *Service) view(ctx context.Context, fn func(doc *document.Document) error) error {
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return storeUnavailable(err)
	}
	return fn(&doc)
}

// requireManager re-evaluates management access against the live settings.
// Never cached: role membership can change between actions.
func requireManager(doc *document.Document, actor access.Actor) error {
	if !access.CanManage(actor, doc.Settings.AllowedRoleIDs) {
		return permissionDenied()
	}
	return nil
}

// activeRun resolves the active run, optionally pinned to an id carried by a
// stale UI control.
func activeRun(doc *document.Document, runID string) (*document.Run, error) {
	if doc.Active == nil {
		return nil, notFound("no active awards run")
	}
	if runID != "" && doc.Active.ID != runID {
		return nil, notFound("this awards run is no longer active")
	}
	return doc.Active, nil
}

// modLog posts a line to the run's mod-log channel when one is configured.
// Best effort: a failed log never fails the action that produced it.
func (s *Service) modLog(ctx context.Context, run *document.Run, text string) {
	if run == nil || run.Channels.ModLog == "" {
		return
	}
	if _, err := s.msg.Send(ctx, run.Channels.ModLog, text); err != nil {
		log.Printf("app: mod log send failed: %v", err)
	}
}

// cursor helpers - advisory state in the session store; read errors collapse
// to "start over".

func (s *Service) cursorKey(guildID, userID, purpose string) session.Key {
	return session.Key{Guild: guildID, User: userID, Purpose: purpose}
}

func (s *Service) getCursor(ctx context.Context, key session.Key) int {
	raw, ok, err := s.sessions.Get(ctx, key)
	if err != nil {
		log.Printf("app: cursor read failed: %v", err)
		return 0
	}
	if !ok {
		return 0
	}
	var idx int
	if err := json.Unmarshal(raw, &idx); err != nil {
		return 0
	}
	return idx
}

func (s *Service) setCursor(ctx context.Context, key session.Key, idx int) {
	raw, _ := json.Marshal(idx)
	if err := s.sessions.Set(ctx, key, raw, session.DefaultTTL); err != nil {
		log.Printf("app: cursor write failed: %v", err)
	}
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
