package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"awards/bot/internal/access"
	"awards/bot/internal/document"
	"awards/bot/internal/search"
	"awards/bot/internal/tally"
)

// outgoing is a message decided during a mutation but sent only after the
// mutation is durably saved, so a failed save never announces results that
// were not committed.
type outgoing struct {
	channelID string
	text      string
}

func (s *Service) flush(ctx context.Context, msgs []outgoing) {
	for _, m := range msgs {
		if _, err := s.msg.Send(ctx, m.channelID, m.text); err != nil {
			log.Printf("app: send to %s failed: %v", m.channelID, err)
		}
	}
}

// finalize appends the archive entry and clears the active run. Both happen
// in the same document mutation; the caller's save makes them durable
// together.
func (s *Service) finalize(doc *document.Document, run *document.Run, results *document.Results) document.ArchiveEntry {
	entry := document.ArchiveEntry{
		ID:        run.ID,
		GuildID:   run.GuildID,
		Name:      run.Name,
		CreatedAt: run.CreatedAt,
		EndedAt:   s.now().UTC(),
		Questions: run.SortedQuestions(),
		Results:   results,
	}
	doc.Archive = append(doc.Archive, entry)
	doc.Active = nil
	return entry
}

// Reveal starts disclosing results. Mode "all" posts every question and
// archives the run in one go; mode "step" freezes the results and waits for
// RevealNext calls. Either way the tally is computed exactly once, here.
func (s *Service) Reveal(ctx context.Context, actor access.Actor, runID string, mode document.RevealMode) error {
	if mode != document.RevealAll && mode != document.RevealStep {
		return validationError(fmt.Sprintf("unknown reveal mode %q", mode), nil)
	}

	var pending []outgoing
	var archived *document.ArchiveEntry
	err := s.mutate(ctx, func(doc *document.Document) error {
		pending, archived = nil, nil
		if err := requireManager(doc, actor); err != nil {
			return err
		}
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if run.Status != document.StatusLocked {
			return phaseViolation(fmt.Sprintf("the reveal can only start from %q, not %q", document.StatusLocked, run.Status))
		}

		now := s.now()
		results := tally.Compute(run, s.cfg.TopN, now)
		startedAt := now.UTC()
		run.Status = document.StatusRevealing
		run.Reveal = document.Reveal{
			Mode:            mode,
			StartedAt:       &startedAt,
			CurrentIndex:    0,
			ComputedResults: &results,
		}

		channel := run.Channels.ResultsOrDefault()
		pending = append(pending, outgoing{channel, fmt.Sprintf("🥁 **%s** — the results are in! %d ballots counted.", run.Name, results.Submissions)})

		if mode == document.RevealStep {
			return nil
		}
		for _, r := range results.PerQuestion {
			pending = append(pending, outgoing{channel, formatResult(r)})
		}
		pending = append(pending, outgoing{channel, formatChaos(results.Chaos)})
		pending = append(pending, outgoing{channel, fmt.Sprintf("🎬 That's a wrap on **%s**. Thanks for voting!", run.Name)})
		entry := s.finalize(doc, run, &results)
		archived = &entry
		return nil
	})
	if err != nil {
		return err
	}
	s.flush(ctx, pending)
	if archived != nil {
		s.search.IndexArchive(*archived)
	}
	return nil
}

// RevealNext discloses exactly one more question. When the last one goes out
// it also posts the chaos stats and archives the run, in the same persisted
// mutation as the index advance.
func (s *Service) RevealNext(ctx context.Context, actor access.Actor, runID string) error {
	var pending []outgoing
	var archived *document.ArchiveEntry
	err := s.mutate(ctx, func(doc *document.Document) error {
		pending, archived = nil, nil
		if err := requireManager(doc, actor); err != nil {
			return err
		}
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if run.Status != document.StatusRevealing {
			return phaseViolation("no reveal is in progress")
		}
		results := run.Reveal.ComputedResults
		if results == nil || run.Reveal.CurrentIndex >= len(results.PerQuestion) {
			return phaseViolation("every question has been revealed")
		}

		channel := run.Channels.ResultsOrDefault()
		pending = append(pending, outgoing{channel, formatResult(results.PerQuestion[run.Reveal.CurrentIndex])})
		run.Reveal.CurrentIndex++

		if run.Reveal.CurrentIndex >= len(results.PerQuestion) {
			pending = append(pending, outgoing{channel, formatChaos(results.Chaos)})
			pending = append(pending, outgoing{channel, fmt.Sprintf("🎬 That's a wrap on **%s**. Thanks for voting!", run.Name)})
			entry := s.finalize(doc, run, results)
			archived = &entry
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.flush(ctx, pending)
	if archived != nil {
		s.search.IndexArchive(*archived)
	}
	return nil
}

// DumpRemaining discloses every question not yet revealed and archives the
// run.
func (s *Service) DumpRemaining(ctx context.Context, actor access.Actor, runID string) error {
	var pending []outgoing
	var archived *document.ArchiveEntry
	err := s.mutate(ctx, func(doc *document.Document) error {
		pending, archived = nil, nil
		if err := requireManager(doc, actor); err != nil {
			return err
		}
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if run.Status != document.StatusRevealing {
			return phaseViolation("no reveal is in progress")
		}
		results := run.Reveal.ComputedResults
		if results == nil {
			return phaseViolation("no reveal is in progress")
		}

		channel := run.Channels.ResultsOrDefault()
		for _, r := range results.PerQuestion[run.Reveal.CurrentIndex:] {
			pending = append(pending, outgoing{channel, formatResult(r)})
		}
		run.Reveal.CurrentIndex = len(results.PerQuestion)
		pending = append(pending, outgoing{channel, formatChaos(results.Chaos)})
		pending = append(pending, outgoing{channel, fmt.Sprintf("🎬 That's a wrap on **%s**. Thanks for voting!", run.Name)})
		entry := s.finalize(doc, run, results)
		archived = &entry
		return nil
	})
	if err != nil {
		return err
	}
	s.flush(ctx, pending)
	if archived != nil {
		s.search.IndexArchive(*archived)
	}
	return nil
}

// EndWithoutReveal archives the run immediately with no results. Available
// from any pre-reveal phase; once the reveal has started the only ways out
// are finishing it or dumping the rest.
func (s *Service) EndWithoutReveal(ctx context.Context, actor access.Actor, runID string) error {
	var pending []outgoing
	var archived *document.ArchiveEntry
	err := s.mutate(ctx, func(doc *document.Document) error {
		pending, archived = nil, nil
		if err := requireManager(doc, actor); err != nil {
			return err
		}
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		switch run.Status {
		case document.StatusSetup, document.StatusOpen, document.StatusLocked:
		default:
			return phaseViolation("the reveal has started; finish it or dump the remaining questions")
		}
		pending = append(pending, outgoing{run.Channels.Announcement, fmt.Sprintf("🛑 **%s** has ended without a reveal.", run.Name)})
		entry := s.finalize(doc, run, nil)
		archived = &entry
		return nil
	})
	if err != nil {
		return err
	}
	s.flush(ctx, pending)
	if archived != nil {
		s.search.IndexArchive(*archived)
	}
	return nil
}

// History returns the archive, oldest first.
func (s *Service) History(ctx context.Context) ([]document.ArchiveEntry, error) {
	var out []document.ArchiveEntry
	err := s.view(ctx, func(doc *document.Document) error {
		out = append([]document.ArchiveEntry{}, doc.Archive...)
		return nil
	})
	return out, err
}

// ActiveRun returns a copy of the active run, or NotFound.
func (s *Service) ActiveRun(ctx context.Context) (document.Run, error) {
	var out document.Run
	err := s.view(ctx, func(doc *document.Document) error {
		if doc.Active == nil {
			return notFound("no active awards run")
		}
		out = *doc.Active
		return nil
	})
	return out, err
}

// ChaosStats returns the chaos block for a run: the active run's frozen
// results when the reveal is under way, otherwise the archived entry.
func (s *Service) ChaosStats(ctx context.Context, runID string) (document.Chaos, error) {
	var out document.Chaos
	err := s.view(ctx, func(doc *document.Document) error {
		if doc.Active != nil && doc.Active.ID == runID {
			if doc.Active.Reveal.ComputedResults == nil {
				return phaseViolation("results haven't been computed yet")
			}
			out = doc.Active.Reveal.ComputedResults.Chaos
			return nil
		}
		entry := doc.ArchivedRun(runID)
		if entry == nil {
			return notFound("no run with that id")
		}
		if entry.Results == nil {
			return notFound("that run ended without a reveal")
		}
		out = entry.Results.Chaos
		return nil
	})
	return out, err
}

// SearchHistory finds archived runs matching q.
func (s *Service) SearchHistory(ctx context.Context, q string, limit int) ([]search.Match, error) {
	var matches []search.Match
	err := s.view(ctx, func(doc *document.Document) error {
		matches = s.search.Search(doc.Archive, q, limit)
		return nil
	})
	return matches, err
}

var medals = []string{"🥇", "🥈", "🥉"}

// formatResult renders one question's block for the results channel.
func formatResult(r document.QuestionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", r.Text)
	if r.Type == document.QuestionShortText {
		fmt.Fprintf(&b, "✍️ %d answers collected", r.TotalVotes)
		return b.String()
	}
	if r.TotalVotes == 0 {
		b.WriteString("No votes.")
		return b.String()
	}
	for i, entry := range r.Top {
		medal := "▫️"
		if i < len(medals) {
			medal = medals[i]
		}
		key := entry.Key
		if r.Type == document.QuestionMemberPick {
			key = fmt.Sprintf("<@%s>", entry.Key)
		}
		fmt.Fprintf(&b, "%s %s — %d vote(s) (%.2f%%)\n", medal, key, entry.Count, entry.Pct)
	}
	if r.Landslide {
		b.WriteString("💥 Landslide!")
	} else if r.ClosestGap != nil && *r.ClosestGap <= 1 {
		b.WriteString("😱 Down to the wire!")
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatChaos renders the cross-question stats block.
func formatChaos(c document.Chaos) string {
	var b strings.Builder
	b.WriteString("🌀 **Chaos stats**\n")
	if c.ClosestRace != nil {
		fmt.Fprintf(&b, "🤏 Closest race: %s (gap of %d)\n", c.ClosestRace.Text, c.ClosestRace.Value)
	}
	if c.MostChaotic != nil {
		fmt.Fprintf(&b, "🎲 Most chaotic: %s (%d different picks)\n", c.MostChaotic.Text, c.MostChaotic.Value)
	}
	if c.MostNominated != "" {
		fmt.Fprintf(&b, "🌟 Most nominated overall: <@%s>\n", c.MostNominated)
	}
	return strings.TrimRight(b.String(), "\n")
}
