// Package document defines the persisted awards document: settings, the
// active run, and the archive of finished runs. The whole tree is stored as
// one pretty-printed JSON blob and read-modified-written atomically by the
// store.
package document

import (
	"fmt"
	"sort"
	"time"
)

// Status is the lifecycle phase of a run. Transitions are linear
// (setup -> open -> locked -> revealing -> archived) with a single escape
// hatch: any pre-reveal phase may end directly into the archive.
type Status string

const (
	StatusSetup     Status = "setup"
	StatusOpen      Status = "open"
	StatusLocked    Status = "locked"
	StatusRevealing Status = "revealing"
	StatusArchived  Status = "archived"
)

type QuestionType string

const (
	QuestionMemberPick     QuestionType = "member_pick"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionShortText      QuestionType = "short_text"
)

type SuggestionState string

const (
	SuggestionPending  SuggestionState = "pending"
	SuggestionApproved SuggestionState = "approved"
	SuggestionRejected SuggestionState = "rejected"
)

type RevealMode string

const (
	RevealAll  RevealMode = "all"
	RevealStep RevealMode = "step"
)

// Input limits, matching what the chat platform's controls can carry.
const (
	MaxSuggestionLen = 120
	MaxQuestionLen   = 140
	MaxChoiceLen     = 60
	MaxChoices       = 25
	MaxAnswerTextLen = 140
)

// MemberPickMaxOptions are the selectable caps for a member-pick question.
var MemberPickMaxOptions = []int{1, 2, 3, 5}

// Document is the singleton root. Exactly one exists per deployment.
type Document struct {
	Version  int            `json:"version"`
	Settings Settings       `json:"settings"`
	Active   *Run           `json:"active"`
	Archive  []ArchiveEntry `json:"archive"`
}

// Settings holds management configuration that outlives individual runs.
// An empty AllowedRoleIDs set means platform administrators only.
type Settings struct {
	AllowedRoleIDs []string `json:"allowed_role_ids"`
}

type Channels struct {
	Announcement string `json:"announcement"`
	Suggestions  string `json:"suggestions,omitempty"`
	Results      string `json:"results,omitempty"`
	ModLog       string `json:"modlog,omitempty"`
}

// SuggestionsOrDefault returns the suggestions channel, falling back to the
// announcement channel when unset.
func (c Channels) SuggestionsOrDefault() string {
	if c.Suggestions != "" {
		return c.Suggestions
	}
	return c.Announcement
}

func (c Channels) ResultsOrDefault() string {
	if c.Results != "" {
		return c.Results
	}
	return c.Announcement
}

// PublicMessages records the ids of persistent public posts so their buttons
// can be re-bound after a redeploy.
type PublicMessages struct {
	Suggestions string `json:"suggestions_message_id,omitempty"`
	Submissions string `json:"submissions_message_id,omitempty"`
	Chaos       string `json:"chaos_message_id,omitempty"`
}

type Run struct {
	ID             string                 `json:"id"`
	GuildID        string                 `json:"guild_id"`
	Name           string                 `json:"name"`
	CreatedBy      string                 `json:"created_by"`
	CreatedAt      time.Time              `json:"created_at"`
	Status         Status                 `json:"status"`
	Channels       Channels               `json:"channels"`
	PublicMessages PublicMessages         `json:"public_messages"`
	Deadline       *time.Time             `json:"deadline,omitempty"`
	Suggestions    []Suggestion           `json:"suggestions"`
	Questions      []Question             `json:"questions"`
	Submissions    map[string]*Submission `json:"submissions"`
	Reveal         Reveal                 `json:"reveal"`
}

type Suggestion struct {
	ID          string          `json:"id"`
	Text        string          `json:"text"`
	SuggestedBy string          `json:"suggested_by"`
	At          time.Time       `json:"at"`
	State       SuggestionState `json:"state"`
}

type Question struct {
	ID       string       `json:"id"`
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Max      int          `json:"max"`
	Required bool         `json:"required"`
	Choices  []string     `json:"choices"`
	Order    int          `json:"order"`
	Enabled  bool         `json:"enabled"`
}

type Submission struct {
	Answers       map[string]Answer `json:"answers"`
	StartedAt     time.Time         `json:"started_at"`
	SubmittedAt   *time.Time        `json:"submitted_at,omitempty"`
	LastUpdatedAt time.Time         `json:"last_updated_at"`
}

// Complete reports whether the submission has been finally submitted.
func (s *Submission) Complete() bool {
	return s != nil && s.SubmittedAt != nil
}

type Reveal struct {
	Mode            RevealMode `json:"mode,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CurrentIndex    int        `json:"current_index"`
	ComputedResults *Results   `json:"computed_results,omitempty"`
}

// ArchiveEntry is the immutable snapshot appended when a run ends. Results is
// nil for runs ended without a reveal.
type ArchiveEntry struct {
	ID        string     `json:"id"`
	GuildID   string     `json:"guild_id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   time.Time  `json:"ended_at"`
	Questions []Question `json:"questions"`
	Results   *Results   `json:"results"`
}

// Default returns the empty document persisted on first contact with a fresh
// remote.
func Default() Document {
	return Document{
		Version:  1,
		Settings: Settings{AllowedRoleIDs: []string{}},
		Active:   nil,
		Archive:  []ArchiveEntry{},
	}
}

// Normalize fills top-level fields that older writers may have omitted so a
// partially-populated blob round-trips cleanly.
func (d *Document) Normalize() {
	if d.Version == 0 {
		d.Version = 1
	}
	if d.Settings.AllowedRoleIDs == nil {
		d.Settings.AllowedRoleIDs = []string{}
	}
	if d.Archive == nil {
		d.Archive = []ArchiveEntry{}
	}
	if d.Active != nil {
		d.Active.normalize()
	}
}

func (r *Run) normalize() {
	if r.Suggestions == nil {
		r.Suggestions = []Suggestion{}
	}
	if r.Questions == nil {
		r.Questions = []Question{}
	}
	if r.Submissions == nil {
		r.Submissions = map[string]*Submission{}
	}
	for _, sub := range r.Submissions {
		if sub.Answers == nil {
			sub.Answers = map[string]Answer{}
		}
	}
}

// NewRun builds a fresh run in setup. The id is derived from the guild and
// creation time, which keeps it unique per guild under the one-active-run
// invariant.
func NewRun(guildID, name, createdBy, announcementChannel string, now time.Time) *Run {
	return &Run{
		ID:          fmt.Sprintf("%s-%d", guildID, now.Unix()),
		GuildID:     guildID,
		Name:        name,
		CreatedBy:   createdBy,
		CreatedAt:   now.UTC(),
		Status:      StatusSetup,
		Channels:    Channels{Announcement: announcementChannel},
		Suggestions: []Suggestion{},
		Questions:   []Question{},
		Submissions: map[string]*Submission{},
	}
}

// SortedQuestions returns a copy of the questions ordered by rank.
func (r *Run) SortedQuestions() []Question {
	qs := make([]Question, len(r.Questions))
	copy(qs, r.Questions)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
	return qs
}

// Question returns the question with the given id, or nil.
func (r *Run) Question(id string) *Question {
	for i := range r.Questions {
		if r.Questions[i].ID == id {
			return &r.Questions[i]
		}
	}
	return nil
}

// Suggestion returns the suggestion with the given id, or nil.
func (r *Run) Suggestion(id string) *Suggestion {
	for i := range r.Suggestions {
		if r.Suggestions[i].ID == id {
			return &r.Suggestions[i]
		}
	}
	return nil
}

// PendingSuggestions returns the pending subset in submission order.
func (r *Run) PendingSuggestions() []Suggestion {
	pending := []Suggestion{}
	for _, s := range r.Suggestions {
		if s.State == SuggestionPending {
			pending = append(pending, s)
		}
	}
	return pending
}

// AppendQuestion adds q at the end of the order.
func (r *Run) AppendQuestion(q Question) {
	q.Order = len(r.Questions)
	r.Questions = append(r.Questions, q)
}

// MoveQuestion shifts the question one position up or down (delta -1 or +1),
// clamped to the list bounds, and re-densifies orders. Returns false when the
// question does not exist.
func (r *Run) MoveQuestion(id string, delta int) bool {
	qs := r.SortedQuestions()
	idx := -1
	for i, q := range qs {
		if q.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	target := idx + delta
	if target < 0 {
		target = 0
	}
	if target > len(qs)-1 {
		target = len(qs) - 1
	}
	qs[idx], qs[target] = qs[target], qs[idx]
	for i := range qs {
		qs[i].Order = i
	}
	r.Questions = qs
	return true
}

// RemoveQuestion deletes the question and re-densifies the remaining orders
// to a gapless 0-based sequence. Returns false when the question does not
// exist.
func (r *Run) RemoveQuestion(id string) bool {
	kept := r.Questions[:0:0]
	found := false
	for _, q := range r.Questions {
		if q.ID == id {
			found = true
			continue
		}
		kept = append(kept, q)
	}
	if !found {
		return false
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Order < kept[j].Order })
	for i := range kept {
		kept[i].Order = i
	}
	r.Questions = kept
	return true
}

// ArchivedRun returns the archive entry with the given id, or nil.
func (d *Document) ArchivedRun(id string) *ArchiveEntry {
	for i := range d.Archive {
		if d.Archive[i].ID == id {
			return &d.Archive[i]
		}
	}
	return nil
}
