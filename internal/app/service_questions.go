package app

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"awards/bot/internal/access"
	"awards/bot/internal/document"
	"awards/bot/internal/session"
	"awards/bot/internal/util"
)

// addQuestion is the shared guard for all question creation: manager only,
// setup only.
func (s *Service) addQuestion(ctx context.Context, actor access.Actor, runID string, q document.Question) error {
	return s.mutate(ctx, func(doc *document.Document) error {
		if err := requireManager(doc, actor); err != nil {
			return err
		}
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if run.Status != document.StatusSetup {
			return phaseViolation("questions are frozen once setup ends")
		}
		run.AppendQuestion(q)
		return nil
	})
}

// AddMemberPickQuestion adds a "pick up to N members" question.
func (s *Service) AddMemberPickQuestion(ctx context.Context, actor access.Actor, runID, text string, max int, required bool) error {
	text = util.Trim(text, document.MaxQuestionLen)
	if text == "" {
		return validationError("the question needs a text", nil)
	}
	if !slices.Contains(document.MemberPickMaxOptions, max) {
		return validationError(fmt.Sprintf("member pick max must be one of %v", document.MemberPickMaxOptions), nil)
	}
	return s.addQuestion(ctx, actor, runID, document.Question{
		ID:       util.NewID("q"),
		Text:     text,
		Type:     document.QuestionMemberPick,
		Max:      max,
		Required: required,
		Enabled:  true,
	})
}

// AddTextQuestion adds a free-text question.
func (s *Service) AddTextQuestion(ctx context.Context, actor access.Actor, runID, text string, required bool) error {
	text = util.Trim(text, document.MaxQuestionLen)
	if text == "" {
		return validationError("the question needs a text", nil)
	}
	return s.addQuestion(ctx, actor, runID, document.Question{
		ID:       util.NewID("q"),
		Text:     text,
		Type:     document.QuestionShortText,
		Required: required,
		Enabled:  true,
	})
}

// choiceDraft is the in-progress multiple-choice builder, parked in the
// session store between the "start" action and "finish".
type choiceDraft struct {
	Text    string   `json:"text"`
	Choices []string `json:"choices"`
}

func (s *Service) choiceDraftKey(guildID, userID string) session.Key {
	return s.cursorKey(guildID, userID, session.PurposeChoiceBuilder)
}

func (s *Service) loadChoiceDraft(ctx context.Context, key session.Key) (choiceDraft, error) {
	raw, ok, err := s.sessions.Get(ctx, key)
	if err != nil {
		return choiceDraft{}, storeUnavailable(fmt.Errorf("read choice draft: %w", err))
	}
	if !ok {
		return choiceDraft{}, notFound("no multiple-choice question in progress; start one first")
	}
	var draft choiceDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return choiceDraft{}, notFound("no multiple-choice question in progress; start one first")
	}
	return draft, nil
}

func (s *Service) saveChoiceDraft(ctx context.Context, key session.Key, draft choiceDraft) error {
	raw, _ := json.Marshal(draft)
	if err := s.sessions.Set(ctx, key, raw, session.DefaultTTL); err != nil {
		return storeUnavailable(fmt.Errorf("save choice draft: %w", err))
	}
	return nil
}

// StartChoiceQuestion opens a multiple-choice builder for the actor. Options
// are added one by one; nothing touches the document until finish.
func (s *Service) StartChoiceQuestion(ctx context.Context, actor access.Actor, guildID, runID, text string) error {
	text = util.Trim(text, document.MaxQuestionLen)
	if text == "" {
		return validationError("the question needs a text", nil)
	}
	err := s.view(ctx, func(doc *document.Document) error {
		if err := requireManager(doc, actor); err != nil {
			return err
		}
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if run.Status != document.StatusSetup {
			return phaseViolation("questions are frozen once setup ends")
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.saveChoiceDraft(ctx, s.choiceDraftKey(guildID, actor.ID), choiceDraft{Text: text})
}

// AddChoiceOption appends one option to the actor's in-progress builder.
func (s *Service) AddChoiceOption(ctx context.Context, actor access.Actor, guildID, option string) (count int, err error) {
	option = util.Trim(option, document.MaxChoiceLen)
	if option == "" {
		return 0, validationError("the option is empty", nil)
	}
	key := s.choiceDraftKey(guildID, actor.ID)
	draft, err := s.loadChoiceDraft(ctx, key)
	if err != nil {
		return 0, err
	}
	if len(draft.Choices) >= document.MaxChoices {
		return 0, validationError(fmt.Sprintf("at most %d options", document.MaxChoices), nil)
	}
	if slices.Contains(draft.Choices, option) {
		return 0, validationError("that option is already in the list", nil)
	}
	draft.Choices = append(draft.Choices, option)
	if err := s.saveChoiceDraft(ctx, key, draft); err != nil {
		return 0, err
	}
	return len(draft.Choices), nil
}

// FinishChoiceQuestion turns the builder into a real question. A poll needs
// at least two options.
func (s *Service) FinishChoiceQuestion(ctx context.Context, actor access.Actor, guildID, runID string, required bool) error {
	key := s.choiceDraftKey(guildID, actor.ID)
	draft, err := s.loadChoiceDraft(ctx, key)
	if err != nil {
		return err
	}
	if len(draft.Choices) < 2 {
		return validationError("a multiple-choice question needs at least 2 options", map[string]int{"options": len(draft.Choices)})
	}
	if err := s.addQuestion(ctx, actor, runID, document.Question{
		ID:       util.NewID("q"),
		Text:     draft.Text,
		Type:     document.QuestionMultipleChoice,
		Required: required,
		Choices:  draft.Choices,
		Enabled:  true,
	}); err != nil {
		return err
	}
	// A failed delete only leaves the draft to expire at its TTL.
	_ = s.sessions.Delete(ctx, key)
	return nil
}

// CancelChoiceQuestion discards the actor's in-progress builder.
func (s *Service) CancelChoiceQuestion(ctx context.Context, actor access.Actor, guildID string) error {
	if err := s.sessions.Delete(ctx, s.choiceDraftKey(guildID, actor.ID)); err != nil {
		return storeUnavailable(fmt.Errorf("discard choice draft: %w", err))
	}
	return nil
}

// MoveQuestion shifts a question one rank up (delta -1) or down (delta +1).
func (s *Service) MoveQuestion(ctx context.Context, actor access.Actor, runID, questionID string, delta int) error {
	if delta != -1 && delta != 1 {
		return validationError("move delta must be -1 or +1", nil)
	}
	return s.mutate(ctx, func(doc *document.Document) error {
		if err := requireManager(doc, actor); err != nil {
			return err
		}
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if run.Status != document.StatusSetup {
			return phaseViolation("questions are frozen once setup ends")
		}
		if !run.MoveQuestion(questionID, delta) {
			return notFound("that question no longer exists")
		}
		return nil
	})
}

// RemoveQuestion deletes a question during setup.
func (s *Service) RemoveQuestion(ctx context.Context, actor access.Actor, runID, questionID string) error {
	return s.mutate(ctx, func(doc *document.Document) error {
		if err := requireManager(doc, actor); err != nil {
			return err
		}
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if run.Status != document.StatusSetup {
			return phaseViolation("questions are frozen once setup ends")
		}
		if !run.RemoveQuestion(questionID) {
			return notFound("that question no longer exists")
		}
		return nil
	})
}
