package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"awards/bot/internal/access"
	"awards/bot/internal/config"
	"awards/bot/internal/document"
	"awards/bot/internal/search"
	"awards/bot/internal/session"
	"awards/bot/internal/store"
)

// memStore is an in-memory documentStore. Load hands out a deep copy so the
// service's in-flight mutations only become visible through Save, the same
// contract the real store has.
type memStore struct {
	raw      []byte
	revision int
	saves    int
}

func newMemStore(t *testing.T) *memStore {
	t.Helper()
	raw, err := json.Marshal(document.Default())
	if err != nil {
		t.Fatalf("marshal default: %v", err)
	}
	return &memStore{raw: raw}
}

func (m *memStore) Load(ctx context.Context) (document.Document, store.Version, error) {
	var doc document.Document
	if err := json.Unmarshal(m.raw, &doc); err != nil {
		return document.Document{}, "", err
	}
	doc.Normalize()
	return doc, store.Version("v"), nil
}

func (m *memStore) Save(ctx context.Context, doc document.Document, version store.Version) (store.Version, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	m.raw = raw
	m.revision++
	m.saves++
	return store.Version("v"), nil
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

func (m *memStore) document(t *testing.T) document.Document {
	t.Helper()
	var doc document.Document
	if err := json.Unmarshal(m.raw, &doc); err != nil {
		t.Fatalf("unmarshal stored document: %v", err)
	}
	doc.Normalize()
	return doc
}

type sentMessage struct {
	channel string
	text    string
}

type recordingMessenger struct {
	sent []sentMessage
}

func (r *recordingMessenger) Send(ctx context.Context, channelID, text string) (string, error) {
	r.sent = append(r.sent, sentMessage{channel: channelID, text: text})
	return "msg-1", nil
}

func (r *recordingMessenger) Edit(ctx context.Context, channelID, messageID, text string) error {
	return nil
}

var (
	admin  = access.Actor{ID: "admin", Admin: true}
	member = access.Actor{ID: "member"}
)

func newTestService(t *testing.T) (*Service, *memStore, *recordingMessenger) {
	t.Helper()
	st := newMemStore(t)
	msg := &recordingMessenger{}
	cfg := config.Config{SubmissionWindow: 7 * 24 * time.Hour, TopN: 3}
	svc := New(cfg, st, session.NewMemory(), msg, search.New(nil))
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc, st, msg
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("error = %v, want DomainError %s", err, code)
	}
	if domainErr.Code != code {
		t.Fatalf("code = %s, want %s", domainErr.Code, code)
	}
}

func setupRun(t *testing.T, svc *Service) string {
	t.Helper()
	runID, err := svc.CreateRun(context.Background(), admin, "g1", "Summer Awards", "chan-announce")
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	return runID
}

func TestCreateRunRequiresManager(t *testing.T) {
	svc, st, _ := newTestService(t)
	_, err := svc.CreateRun(context.Background(), member, "g1", "Summer Awards", "chan")
	wantCode(t, err, "PERMISSION_DENIED")
	if st.document(t).Active != nil {
		t.Fatal("run created despite denial")
	}
}

func TestCreateRunWhileOneIsActive(t *testing.T) {
	svc, _, _ := newTestService(t)
	setupRun(t, svc)
	_, err := svc.CreateRun(context.Background(), admin, "g1", "Second Run", "chan")
	wantCode(t, err, "PHASE_VIOLATION")
}

func TestAllowedRoleGrantsManagement(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.SetAllowedRoles(context.Background(), admin, []string{"mods"}); err != nil {
		t.Fatalf("SetAllowedRoles() error = %v", err)
	}

	mod := access.Actor{ID: "mod-user", RoleIDs: []string{"mods"}}
	if _, err := svc.CreateRun(context.Background(), mod, "g1", "Mod Run", "chan"); err != nil {
		t.Fatalf("CreateRun() by allowed role error = %v", err)
	}

	// Role mutation itself stays admin-only.
	err := svc.SetAllowedRoles(context.Background(), mod, []string{"mods", "everyone"})
	wantCode(t, err, "PERMISSION_DENIED")
}

func TestOpenWithoutQuestionsIsPhaseViolation(t *testing.T) {
	svc, st, _ := newTestService(t)
	runID := setupRun(t, svc)

	err := svc.OpenSubmissions(context.Background(), admin, runID, nil)
	wantCode(t, err, "PHASE_VIOLATION")
	if got := st.document(t).Active.Status; got != document.StatusSetup {
		t.Fatalf("status = %s, want setup", got)
	}
}

func TestOpenAppliesDefaultDeadline(t *testing.T) {
	svc, st, _ := newTestService(t)
	runID := setupRun(t, svc)
	if err := svc.AddTextQuestion(context.Background(), admin, runID, "Best quote?", false); err != nil {
		t.Fatalf("AddTextQuestion() error = %v", err)
	}

	if err := svc.OpenSubmissions(context.Background(), admin, runID, nil); err != nil {
		t.Fatalf("OpenSubmissions() error = %v", err)
	}
	run := st.document(t).Active
	if run.Status != document.StatusOpen {
		t.Fatalf("status = %s, want open", run.Status)
	}
	want := time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)
	if run.Deadline == nil || !run.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", run.Deadline, want)
	}
	if run.PublicMessages.Submissions == "" {
		t.Fatal("announcement message id was not stored")
	}
}

func TestQuestionsFreezeAfterSetup(t *testing.T) {
	svc, _, _ := newTestService(t)
	runID := setupRun(t, svc)
	ctx := context.Background()
	if err := svc.AddTextQuestion(ctx, admin, runID, "Q1", false); err != nil {
		t.Fatalf("AddTextQuestion() error = %v", err)
	}
	if err := svc.OpenSubmissions(ctx, admin, runID, nil); err != nil {
		t.Fatalf("OpenSubmissions() error = %v", err)
	}

	wantCode(t, svc.AddTextQuestion(ctx, admin, runID, "Too late", false), "PHASE_VIOLATION")
	wantCode(t, svc.RemoveQuestion(ctx, admin, runID, "whatever"), "PHASE_VIOLATION")
}

func TestSuggestionFlow(t *testing.T) {
	svc, st, _ := newTestService(t)
	runID := setupRun(t, svc)
	ctx := context.Background()

	for _, text := range []string{"Best meme", "Most helpful", "Night owl"} {
		if err := svc.SubmitSuggestion(ctx, runID, "member-1", text); err != nil {
			t.Fatalf("SubmitSuggestion(%q) error = %v", text, err)
		}
	}

	// Cursor starts at the first pending suggestion and wraps.
	first, err := svc.ReviewSuggestion(ctx, admin, runID, false)
	if err != nil {
		t.Fatalf("ReviewSuggestion() error = %v", err)
	}
	if first.Suggestion.Text != "Best meme" || first.Position != 1 || first.Total != 3 {
		t.Fatalf("first page = %+v", first)
	}
	second, _ := svc.ReviewSuggestion(ctx, admin, runID, true)
	if second.Suggestion.Text != "Most helpful" {
		t.Fatalf("second page = %+v", second)
	}

	if err := svc.ApproveSuggestion(ctx, admin, runID, second.Suggestion.ID); err != nil {
		t.Fatalf("ApproveSuggestion() error = %v", err)
	}
	// Re-approving is a one-way transition.
	wantCode(t, svc.ApproveSuggestion(ctx, admin, runID, second.Suggestion.ID), "PHASE_VIOLATION")

	// The pending set shrank; the cursor clamps instead of indexing out.
	page, err := svc.ReviewSuggestion(ctx, admin, runID, false)
	if err != nil {
		t.Fatalf("ReviewSuggestion() after shrink error = %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("total = %d, want 2", page.Total)
	}

	doc := st.document(t)
	if got := doc.Active.Suggestion(second.Suggestion.ID).State; got != document.SuggestionApproved {
		t.Fatalf("state = %s", got)
	}
}

func TestSuggestionsOnlyDuringSetup(t *testing.T) {
	svc, _, _ := newTestService(t)
	runID := setupRun(t, svc)
	ctx := context.Background()
	_ = svc.AddTextQuestion(ctx, admin, runID, "Q1", false)
	_ = svc.OpenSubmissions(ctx, admin, runID, nil)

	wantCode(t, svc.SubmitSuggestion(ctx, runID, "member-1", "late idea"), "PHASE_VIOLATION")
}

func TestChoiceBuilder(t *testing.T) {
	svc, st, _ := newTestService(t)
	runID := setupRun(t, svc)
	ctx := context.Background()

	if err := svc.StartChoiceQuestion(ctx, admin, "g1", runID, "Favourite channel?"); err != nil {
		t.Fatalf("StartChoiceQuestion() error = %v", err)
	}
	if _, err := svc.AddChoiceOption(ctx, admin, "g1", "#general"); err != nil {
		t.Fatalf("AddChoiceOption() error = %v", err)
	}

	// One option is not a poll.
	wantCode(t, svc.FinishChoiceQuestion(ctx, admin, "g1", runID, true), "VALIDATION_ERROR")

	count, err := svc.AddChoiceOption(ctx, admin, "g1", "#memes")
	if err != nil {
		t.Fatalf("AddChoiceOption() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if err := svc.FinishChoiceQuestion(ctx, admin, "g1", runID, true); err != nil {
		t.Fatalf("FinishChoiceQuestion() error = %v", err)
	}

	questions := st.document(t).Active.Questions
	if len(questions) != 1 || questions[0].Type != document.QuestionMultipleChoice || len(questions[0].Choices) != 2 {
		t.Fatalf("questions = %+v", questions)
	}

	// The draft is consumed.
	_, err = svc.AddChoiceOption(ctx, admin, "g1", "#random")
	wantCode(t, err, "NOT_FOUND")
}

func openRunWithBallot(t *testing.T, svc *Service) string {
	t.Helper()
	ctx := context.Background()
	runID := setupRun(t, svc)
	if err := svc.AddMemberPickQuestion(ctx, admin, runID, "MVP?", 1, true); err != nil {
		t.Fatalf("AddMemberPickQuestion() error = %v", err)
	}
	if err := svc.AddTextQuestion(ctx, admin, runID, "Best quote?", false); err != nil {
		t.Fatalf("AddTextQuestion() error = %v", err)
	}
	if err := svc.OpenSubmissions(ctx, admin, runID, nil); err != nil {
		t.Fatalf("OpenSubmissions() error = %v", err)
	}
	return runID
}

func TestFillAndSubmit(t *testing.T) {
	svc, st, _ := newTestService(t)
	runID := openRunWithBallot(t, svc)
	ctx := context.Background()

	step, err := svc.StartFill(ctx, runID, "voter-1")
	if err != nil {
		t.Fatalf("StartFill() error = %v", err)
	}
	if step.Position != 1 || step.Total != 2 || step.Question.Text != "MVP?" {
		t.Fatalf("first page = %+v", step)
	}

	// The required question is unanswered, so submit is rejected.
	err = svc.SubmitAll(ctx, runID, "voter-1")
	wantCode(t, err, "VALIDATION_ERROR")

	wantCode(t, svc.SaveAnswer(ctx, runID, "voter-1", step.Question.ID, document.TextAnswer("nope")), "VALIDATION_ERROR")
	if err := svc.SaveAnswer(ctx, runID, "voter-1", step.Question.ID, document.MemberAnswer("hero")); err != nil {
		t.Fatalf("SaveAnswer() error = %v", err)
	}
	if err := svc.SubmitAll(ctx, runID, "voter-1"); err != nil {
		t.Fatalf("SubmitAll() error = %v", err)
	}

	sub := st.document(t).Active.Submissions["voter-1"]
	if !sub.Complete() {
		t.Fatal("submission not marked complete")
	}

	next, err := svc.WizardStep(ctx, runID, "voter-1", 1)
	if err != nil {
		t.Fatalf("WizardStep() error = %v", err)
	}
	if next.Question.Text != "Best quote?" || next.Position != 2 {
		t.Fatalf("second page = %+v", next)
	}
	// The cursor clamps at the last page.
	clamped, _ := svc.WizardStep(ctx, runID, "voter-1", 5)
	if clamped.Position != 2 {
		t.Fatalf("clamped page = %+v", clamped)
	}
}

func TestVotingClosedOutsideOpen(t *testing.T) {
	svc, _, _ := newTestService(t)
	runID := setupRun(t, svc)
	ctx := context.Background()

	_, err := svc.StartFill(ctx, runID, "voter-1")
	wantCode(t, err, "PHASE_VIOLATION")
	wantCode(t, svc.SaveAnswer(ctx, runID, "voter-1", "q", document.TextAnswer("x")), "PHASE_VIOLATION")
}

func TestStepRevealArchivesOnLastQuestion(t *testing.T) {
	svc, st, msg := newTestService(t)
	runID := openRunWithBallot(t, svc)
	ctx := context.Background()

	_ = svc.SaveAnswer(ctx, runID, "voter-1", st.document(t).Active.Questions[0].ID, document.MemberAnswer("hero"))
	if err := svc.LockSubmissions(ctx, admin, runID); err != nil {
		t.Fatalf("LockSubmissions() error = %v", err)
	}

	if err := svc.Reveal(ctx, admin, runID, document.RevealStep); err != nil {
		t.Fatalf("Reveal() error = %v", err)
	}
	run := st.document(t).Active
	if run.Status != document.StatusRevealing || run.Reveal.ComputedResults == nil {
		t.Fatalf("run after reveal start = %+v", run)
	}

	if err := svc.RevealNext(ctx, admin, runID); err != nil {
		t.Fatalf("first RevealNext() error = %v", err)
	}
	if st.document(t).Active.Reveal.CurrentIndex != 1 {
		t.Fatalf("index = %d, want 1", st.document(t).Active.Reveal.CurrentIndex)
	}

	// The second (last) question archives the run in the same mutation.
	if err := svc.RevealNext(ctx, admin, runID); err != nil {
		t.Fatalf("second RevealNext() error = %v", err)
	}
	doc := st.document(t)
	if doc.Active != nil {
		t.Fatal("active run not cleared")
	}
	if len(doc.Archive) != 1 || doc.Archive[0].Results == nil {
		t.Fatalf("archive = %+v", doc.Archive)
	}

	// With the run archived, further reveal steps have nothing to act on.
	err := svc.RevealNext(ctx, admin, runID)
	wantCode(t, err, "NOT_FOUND")

	var sawWinner bool
	for _, m := range msg.sent {
		if strings.Contains(m.text, "hero") {
			sawWinner = true
		}
	}
	if !sawWinner {
		t.Fatal("winner never announced")
	}
}

func TestRevealAllArchivesImmediately(t *testing.T) {
	svc, st, msg := newTestService(t)
	runID := openRunWithBallot(t, svc)
	ctx := context.Background()

	_ = svc.LockSubmissions(ctx, admin, runID)
	if err := svc.Reveal(ctx, admin, runID, document.RevealAll); err != nil {
		t.Fatalf("Reveal() error = %v", err)
	}

	doc := st.document(t)
	if doc.Active != nil || len(doc.Archive) != 1 {
		t.Fatalf("active = %v, archive = %d", doc.Active, len(doc.Archive))
	}
	// Intro, two questions, chaos, closing marker.
	if len(msg.sent) < 4 {
		t.Fatalf("sent %d messages: %+v", len(msg.sent), msg.sent)
	}
}

func TestRevealOnlyFromLocked(t *testing.T) {
	svc, _, _ := newTestService(t)
	runID := openRunWithBallot(t, svc)
	err := svc.Reveal(context.Background(), admin, runID, document.RevealAll)
	wantCode(t, err, "PHASE_VIOLATION")
}

func TestDumpRemaining(t *testing.T) {
	svc, st, _ := newTestService(t)
	runID := openRunWithBallot(t, svc)
	ctx := context.Background()

	_ = svc.LockSubmissions(ctx, admin, runID)
	_ = svc.Reveal(ctx, admin, runID, document.RevealStep)
	if err := svc.DumpRemaining(ctx, admin, runID); err != nil {
		t.Fatalf("DumpRemaining() error = %v", err)
	}
	doc := st.document(t)
	if doc.Active != nil || len(doc.Archive) != 1 {
		t.Fatalf("dump did not finalize: active = %v", doc.Active)
	}
}

func TestEndWithoutReveal(t *testing.T) {
	svc, st, _ := newTestService(t)
	runID := openRunWithBallot(t, svc)
	ctx := context.Background()

	if err := svc.EndWithoutReveal(ctx, admin, runID); err != nil {
		t.Fatalf("EndWithoutReveal() error = %v", err)
	}
	doc := st.document(t)
	if doc.Active != nil {
		t.Fatal("active run not cleared")
	}
	if len(doc.Archive) != 1 || doc.Archive[0].Results != nil {
		t.Fatalf("archive = %+v", doc.Archive)
	}

	// Once the reveal has started there is no quiet exit.
	runID2 := openRunWithBallot(t, svc)
	_ = svc.LockSubmissions(ctx, admin, runID2)
	_ = svc.Reveal(ctx, admin, runID2, document.RevealStep)
	wantCode(t, svc.EndWithoutReveal(ctx, admin, runID2), "PHASE_VIOLATION")
}

func TestChaosStatsFromArchive(t *testing.T) {
	svc, _, _ := newTestService(t)
	runID := openRunWithBallot(t, svc)
	ctx := context.Background()

	_ = svc.LockSubmissions(ctx, admin, runID)
	_ = svc.Reveal(ctx, admin, runID, document.RevealAll)

	if _, err := svc.ChaosStats(ctx, runID); err != nil {
		t.Fatalf("ChaosStats() error = %v", err)
	}
	_, err := svc.ChaosStats(ctx, "nope")
	wantCode(t, err, "NOT_FOUND")
}

func TestSearchHistoryFallsBackToScan(t *testing.T) {
	svc, _, _ := newTestService(t)
	runID := openRunWithBallot(t, svc)
	ctx := context.Background()

	_ = svc.LockSubmissions(ctx, admin, runID)
	_ = svc.Reveal(ctx, admin, runID, document.RevealAll)

	matches, err := svc.SearchHistory(ctx, "summer", 5)
	if err != nil {
		t.Fatalf("SearchHistory() error = %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "Summer Awards" {
		t.Fatalf("matches = %+v", matches)
	}
}
