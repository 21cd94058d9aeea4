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

// OpenSubmissions moves the run from setup to open and announces the ballot.
// A run with no questions has nothing to vote on and stays in setup.
func (s *Service) OpenSubmissions(ctx context.Context, actor access.Actor, runID string, deadline *time.Time) error {
	var announceChannel, name string
	var due time.Time
	err := s.mutate(ctx, func(doc *document.Document) error {
		if err := requireManager(doc, actor); err != nil {
			return err
		}
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if run.Status != document.StatusSetup {
			return phaseViolation(fmt.Sprintf("submissions cannot open from %q", run.Status))
		}
		if len(run.Questions) == 0 {
			return phaseViolation("add at least one question before opening submissions")
		}
		due = s.defaultDeadline(s.now())
		if deadline != nil {
			due = deadline.UTC()
		}
		run.Status = document.StatusOpen
		run.Deadline = &due
		announceChannel, name = run.Channels.Announcement, run.Name
		return nil
	})
	if err != nil {
		return err
	}

	messageID, err := s.msg.Send(ctx, announceChannel,
		fmt.Sprintf("🗳️ **%s** is open for votes! You have until <t:%d:F>.", name, due.Unix()))
	if err != nil {
		// The run is open either way; the pinned control just won't re-bind.
		return nil
	}
	return s.mutate(ctx, func(doc *document.Document) error {
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		run.PublicMessages.Submissions = messageID
		return nil
	})
}

// LockSubmissions freezes voting. Submissions are read-only from here on,
// which is what lets the reveal compute results exactly once.
func (s *Service) LockSubmissions(ctx context.Context, actor access.Actor, runID string) error {
	var run *document.Run
	err := s.mutate(ctx, func(doc *document.Document) error {
		if err := requireManager(doc, actor); err != nil {
			return err
		}
		active, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if active.Status != document.StatusOpen {
			return phaseViolation(fmt.Sprintf("submissions cannot lock from %q", active.Status))
		}
		active.Status = document.StatusLocked
		run = active
		return nil
	})
	if err != nil {
		return err
	}
	s.modLog(ctx, run, fmt.Sprintf("🔒 <@%s> locked submissions (%d ballots in)", actor.ID, len(run.Submissions)))
	return nil
}

// FillStep is one page of the voting wizard.
type FillStep struct {
	Question document.Question
	Answer   *document.Answer
	Position int
	Total    int
}

// StartFill opens (or resumes) a member's ballot and returns the first page.
// The submission record is created lazily here; the wizard cursor resets.
func (s *Service) StartFill(ctx context.Context, runID, userID string) (FillStep, error) {
	var step FillStep
	var guildID string
	err := s.mutate(ctx, func(doc *document.Document) error {
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if run.Status != document.StatusOpen {
			return phaseViolation("voting is not open")
		}
		if _, ok := run.Submissions[userID]; !ok {
			now := s.now().UTC()
			run.Submissions[userID] = &document.Submission{
				Answers:       map[string]document.Answer{},
				StartedAt:     now,
				LastUpdatedAt: now,
			}
		}
		guildID = run.GuildID
		step = fillStep(run, userID, 0)
		return nil
	})
	if err != nil {
		return FillStep{}, err
	}
	s.setCursor(ctx, s.cursorKey(guildID, userID, session.PurposeWizardCursor), 0)
	return step, nil
}

// WizardStep moves the member's wizard cursor by delta pages and returns the
// page it lands on, clamped to the ballot bounds.
func (s *Service) WizardStep(ctx context.Context, runID, userID string, delta int) (FillStep, error) {
	var step FillStep
	err := s.view(ctx, func(doc *document.Document) error {
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if run.Status != document.StatusOpen {
			return phaseViolation("voting is not open")
		}
		if len(run.Questions) == 0 {
			return notFound("this run has no questions")
		}
		key := s.cursorKey(run.GuildID, userID, session.PurposeWizardCursor)
		idx := clamp(s.getCursor(ctx, key)+delta, 0, len(run.Questions)-1)
		s.setCursor(ctx, key, idx)
		step = fillStep(run, userID, idx)
		return nil
	})
	return step, err
}

func fillStep(run *document.Run, userID string, idx int) FillStep {
	questions := run.SortedQuestions()
	idx = clamp(idx, 0, len(questions)-1)
	step := FillStep{
		Question: questions[idx],
		Position: idx + 1,
		Total:    len(questions),
	}
	if sub := run.Submissions[userID]; sub != nil {
		if answer, ok := sub.Answers[questions[idx].ID]; ok {
			step.Answer = &answer
		}
	}
	return step
}

// SaveAnswer stores one answer on the member's ballot. Answers can be
// re-saved any number of times while voting is open, including after a final
// submit.
func (s *Service) SaveAnswer(ctx context.Context, runID, userID, questionID string, answer document.Answer) error {
	if answer.Kind == document.AnswerText {
		answer.Text = util.Trim(answer.Text, document.MaxAnswerTextLen)
	}
	return s.mutate(ctx, func(doc *document.Document) error {
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if run.Status != document.StatusOpen {
			return phaseViolation("voting is not open")
		}
		q := run.Question(questionID)
		if q == nil {
			return notFound("that question no longer exists")
		}
		if err := answer.ValidFor(*q); err != nil {
			return validationError(err.Error(), nil)
		}
		now := s.now().UTC()
		sub := run.Submissions[userID]
		if sub == nil {
			sub = &document.Submission{Answers: map[string]document.Answer{}, StartedAt: now}
			run.Submissions[userID] = sub
		}
		sub.Answers[questionID] = answer
		sub.LastUpdatedAt = now
		return nil
	})
}

// SubmitAll finalizes the member's ballot once every required question has an
// answer. Missing ones are reported by text so the member knows what's left.
func (s *Service) SubmitAll(ctx context.Context, runID, userID string) error {
	return s.mutate(ctx, func(doc *document.Document) error {
		run, err := activeRun(doc, runID)
		if err != nil {
			return err
		}
		if run.Status != document.StatusOpen {
			return phaseViolation("voting is not open")
		}
		sub := run.Submissions[userID]
		if sub == nil || len(sub.Answers) == 0 {
			return validationError("you haven't answered anything yet", nil)
		}
		var missing []string
		for _, q := range run.SortedQuestions() {
			if !q.Required {
				continue
			}
			if _, ok := sub.Answers[q.ID]; !ok {
				missing = append(missing, q.Text)
			}
		}
		if len(missing) > 0 {
			return validationError("some required questions are unanswered", map[string][]string{"missing": missing})
		}
		now := s.now().UTC()
		sub.SubmittedAt = &now
		sub.LastUpdatedAt = now
		return nil
	})
}
