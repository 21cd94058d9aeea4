package app

import (
	"context"
	"fmt"
	"time"

	"awards/bot/internal/access"
	"awards/bot/internal/document"
	"awards/bot/internal/session"
	"awards/bot/internal/util"
)

// CreateRun starts a new awards run in setup. At most one run is active at a
// time; ending the current one is the only way to make room.
func (s *Service) CreateRun(ctx context.Context, actor access.Actor, guildID, name, announcementChannelID string) (string, error) {
	name = util.Trim(name, document.MaxQuestionLen)
	if name == "" {
		return "", validationError("the run needs a name", nil)
	}
	if announcementChannelID == "" {
		return "", validationError("the run needs an announcement channel", nil)
	}

	var runID string
	err := s.mutate(ctx, func(doc *document.Document) error {
		if err := requireManager(doc, actor); err != nil {
			return err
		}
		if doc.Active != nil {
			return phaseViolation(fmt.Sprintf("%q is still active; end it before starting a new run", doc.Active.Name))
		}
		run := document.NewRun(guildID, name, actor.ID, announcementChannelID, s.now())
		doc.Active = run
		runID = run.ID
		return nil
	})
	return runID, err
}

// SetAllowedRoles replaces the set of roles allowed to manage runs. Restricted
// to administrators so a manager role cannot grant itself wider access.
func (s *Service) SetAllowedRoles(ctx context.Context, actor access.Actor, roleIDs []string) error {
	if !actor.Admin {
		return permissionDenied()
	}
	return s.mutate(ctx, func(doc *document.Document) error {
		doc.Settings.AllowedRoleIDs = sortedUnique(roleIDs)
		return nil
	})
}

// AddAllowedRole adds one role to the management set.
func (s *Service) AddAllowedRole(ctx context.Context, actor access.Actor, roleID string) error {
	if !actor.Admin {
		return permissionDenied()
	}
	if roleID == "" {
		return validationError("missing role id", nil)
	}
	return s.mutate(ctx, func(doc *document.Document) error {
		doc.Settings.AllowedRoleIDs = sortedUnique(append(doc.Settings.AllowedRoleIDs, roleID))
		return nil
	})
}

// RemoveAllowedRole removes one role from the management set.
func (s *Service) RemoveAllowedRole(ctx context.Context, actor access.Actor, roleID string) error {
	if !actor.Admin {
		return permissionDenied()
	}
	return s.mutate(ctx, func(doc *document.Document) error {
		kept := doc.Settings.AllowedRoleIDs[:0:0]
		for _, id := range doc.Settings.AllowedRoleIDs {
			if id != roleID {
				kept = append(kept, id)
			}
		}
		if kept == nil {
			kept = []string{}
		}
		doc.Settings.AllowedRoleIDs = kept
		return nil
	})
}

// ChannelKind selects which of the run's channels SetChannel assigns.
type ChannelKind string

const (
	ChannelAnnouncement ChannelKind = "announcement"
	ChannelSuggestions  ChannelKind = "suggestions"
	ChannelResults      ChannelKind = "results"
	ChannelModLog       ChannelKind = "modlog"
)

// SetChannel points one of the run's channels somewhere else. The suggestions
// channel is frozen once setup ends (the public prompt already lives in it),
// and nothing may move while results are being revealed.
func (s *Service) SetChannel(ctx context.Context, actor access.Actor, runID string, kind ChannelKind, channelID string) error {
	if channelID == "" {
		return validationError("missing channel id", nil)
	}
	return s.mutate(ctx, func(doc *document.Document) error {
		if err := requireManager(doc, actor); err != nil {
			return err
		}
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if run.Status == document.StatusRevealing {
			return phaseViolation("channels cannot change while results are being revealed")
		}
		switch kind {
		case ChannelAnnouncement:
			run.Channels.Announcement = channelID
		case ChannelSuggestions:
			if run.Status != document.StatusSetup {
				return phaseViolation("the suggestions channel can only change during setup")
			}
			run.Channels.Suggestions = channelID
		case ChannelResults:
			run.Channels.Results = channelID
		case ChannelModLog:
			run.Channels.ModLog = channelID
		default:
			return validationError(fmt.Sprintf("unknown channel kind %q", kind), nil)
		}
		return nil
	})
}

// PostSuggestionPrompt posts the public "suggest a category" message and
// remembers its id so the control can be re-bound after a redeploy.
func (s *Service) PostSuggestionPrompt(ctx context.Context, actor access.Actor, runID string) error {
	var channelID, name string
	err := s.view(ctx, func(doc *document.Document) error {
		if err := requireManager(doc, actor); err != nil {
			return err
		}
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if run.Status != document.StatusSetup {
			return phaseViolation("suggestions are only collected during setup")
		}
		channelID = run.Channels.SuggestionsOrDefault()
		name = run.Name
		return nil
	})
	if err != nil {
		return err
	}

	messageID, err := s.msg.Send(ctx, channelID, fmt.Sprintf("🏆 **%s** — got an idea for an award category? Suggest it here!", name))
	if err != nil {
		return storeUnavailable(fmt.Errorf("post suggestion prompt: %w", err))
	}

	return s.mutate(ctx, func(doc *document.Document) error {
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		run.PublicMessages.Suggestions = messageID
		return nil
	})
}

// SubmitSuggestion records a member's category idea. Open to everyone, setup
// phase only.
func (s *Service) SubmitSuggestion(ctx context.Context, runID, userID, text string) error {
	text = util.Trim(text, document.MaxSuggestionLen)
	if text == "" {
		return validationError("the suggestion is empty", nil)
	}

	var run *document.Run
	err := s.mutate(ctx, func(doc *document.Document) error {
		active, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if active.Status != document.StatusSetup {
			return phaseViolation("suggestions are closed for this run")
		}
		active.Suggestions = append(active.Suggestions, document.Suggestion{
			ID:          util.NewID("sug"),
			Text:        text,
			SuggestedBy: userID,
			At:          s.now().UTC(),
			State:       document.SuggestionPending,
		})
		run = active
		return nil
	})
	if err != nil {
		return err
	}
	s.modLog(ctx, run, fmt.Sprintf("💡 new suggestion from <@%s>: %s", userID, text))
	return nil
}

// ReviewedSuggestion is one page of the triage flow.
type ReviewedSuggestion struct {
	Suggestion document.Suggestion
	Position   int
	Total      int
}

// ReviewSuggestion shows the reviewer's current pending suggestion, or the
// next one when advance is set. The cursor is advisory: the pending set
// shrinks as triage happens, so the index is recomputed and clamped every
// call rather than trusted.
func (s *Service) ReviewSuggestion(ctx context.Context, actor access.Actor, runID string, advance bool) (ReviewedSuggestion, error) {
	var out ReviewedSuggestion
	var guildID string
	err := s.view(ctx, func(doc *document.Document) error {
		if err := requireManager(doc, actor); err != nil {
			return err
		}
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		guildID = run.GuildID
		pending := run.PendingSuggestions()
		if len(pending) == 0 {
			return notFound("no pending suggestions")
		}

		key := s.cursorKey(guildID, actor.ID, session.PurposeSuggestionCursor)
		idx := clamp(s.getCursor(ctx, key), 0, len(pending)-1)
		if advance {
			idx = (idx + 1) % len(pending)
		}
		s.setCursor(ctx, key, idx)

		out = ReviewedSuggestion{Suggestion: pending[idx], Position: idx + 1, Total: len(pending)}
		return nil
	})
	return out, err
}

// ApproveSuggestion marks a pending suggestion approved. Approval does not
// create a question; that stays a separate, deliberate step.
func (s *Service) ApproveSuggestion(ctx context.Context, actor access.Actor, runID, suggestionID string) error {
	return s.triageSuggestion(ctx, actor, runID, suggestionID, document.SuggestionApproved)
}

// RejectSuggestion marks a pending suggestion rejected.
func (s *Service) RejectSuggestion(ctx context.Context, actor access.Actor, runID, suggestionID string) error {
	return s.triageSuggestion(ctx, actor, runID, suggestionID, document.SuggestionRejected)
}

func (s *Service) triageSuggestion(ctx context.Context, actor access.Actor, runID, suggestionID string, state document.SuggestionState) error {
	var run *document.Run
	var text string
	err := s.mutate(ctx, func(doc *document.Document) error {
		if err := requireManager(doc, actor); err != nil {
			return err
		}
		active, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		sug := active.Suggestion(suggestionID)
		if sug == nil {
			return notFound("that suggestion no longer exists")
		}
		if sug.State != document.SuggestionPending {
			return phaseViolation(fmt.Sprintf("suggestion already %s", sug.State))
		}
		sug.State = state
		run, text = active, sug.Text
		return nil
	})
	if err != nil {
		return err
	}
	verb := "approved"
	if state == document.SuggestionRejected {
		verb = "rejected"
	}
	s.modLog(ctx, run, fmt.Sprintf("🗂️ <@%s> %s suggestion: %s", actor.ID, verb, text))
	return nil
}

// defaultDeadline is the submission window applied when a manager opens
// submissions without naming one.
func (s *Service) defaultDeadline(now time.Time) time.Time {
	return now.Add(s.cfg.SubmissionWindow).UTC()
}
