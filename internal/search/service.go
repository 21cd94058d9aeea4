// Package search finds past runs in the archive. With Meilisearch configured
// it gets typo-tolerant full-text search; without it, a linear scan over the
// archive in the document, which is plenty for a single community's history.
package search

import (
	"log"
	"strings"

	"awards/bot/internal/document"
)

// ArchiveRecord is the indexed shape of one archived run.
type ArchiveRecord struct {
	ID        string   `json:"id"`
	GuildID   string   `json:"guildId"`
	Name      string   `json:"name"`
	Questions []string `json:"questions"`
	Winners   []string `json:"winners"`
}

// Match is one search hit.
type Match struct {
	RunID   string
	Name    string
	Snippet string
}

// Service fronts the optional Meilisearch backend with a scan fallback.
type Service struct {
	meili *Meili
}

// New wraps a Meilisearch client; meili may be nil.
func New(meili *Meili) *Service {
	return &Service{meili: meili}
}

// Close stops the underlying client, if any.
func (s *Service) Close() {
	if s != nil && s.meili != nil {
		s.meili.Close()
	}
}

// IndexArchive pushes an archived run into the index. Best effort: the
// archive entry in the document is authoritative, the index is a convenience.
func (s *Service) IndexArchive(entry document.ArchiveEntry) {
	if s == nil || s.meili == nil {
		return
	}
	if err := s.meili.Index(recordFor(entry)); err != nil {
		log.Printf("search: index archive %s: %v", entry.ID, err)
	}
}

// Search looks up archived runs matching q. archive is the fallback corpus
// when Meilisearch is absent or down.
func (s *Service) Search(archive []document.ArchiveEntry, q string, limit int) []Match {
	if limit <= 0 {
		limit = 10
	}
	if s != nil && s.meili != nil && s.meili.Healthy() {
		matches, err := s.meili.Query(q, limit)
		if err == nil {
			return matches
		}
		log.Printf("search: meilisearch query failed, falling back to scan: %v", err)
	}
	return scan(archive, q, limit)
}

// scan is the fallback: case-insensitive substring match over run names and
// question texts, newest first.
func scan(archive []document.ArchiveEntry, q string, limit int) []Match {
	needle := strings.ToLower(strings.TrimSpace(q))
	if needle == "" {
		return nil
	}
	var matches []Match
	for i := len(archive) - 1; i >= 0; i-- {
		entry := archive[i]
		if m, ok := scanEntry(entry, needle); ok {
			matches = append(matches, m)
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches
}

func scanEntry(entry document.ArchiveEntry, needle string) (Match, bool) {
	if strings.Contains(strings.ToLower(entry.Name), needle) {
		return Match{RunID: entry.ID, Name: entry.Name}, true
	}
	for _, q := range entry.Questions {
		if strings.Contains(strings.ToLower(q.Text), needle) {
			return Match{RunID: entry.ID, Name: entry.Name, Snippet: q.Text}, true
		}
	}
	return Match{}, false
}

func recordFor(entry document.ArchiveEntry) ArchiveRecord {
	rec := ArchiveRecord{
		ID:      entry.ID,
		GuildID: entry.GuildID,
		Name:    entry.Name,
	}
	for _, q := range entry.Questions {
		rec.Questions = append(rec.Questions, q.Text)
	}
	if entry.Results != nil {
		for _, r := range entry.Results.PerQuestion {
			if len(r.Top) > 0 {
				rec.Winners = append(rec.Winners, r.Top[0].Key)
			}
		}
	}
	return rec
}
