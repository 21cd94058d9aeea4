package document

import (
	"encoding/json"
	"fmt"
)

type AnswerKind string

const (
	AnswerMember  AnswerKind = "member"
	AnswerMembers AnswerKind = "members"
	AnswerChoice  AnswerKind = "choice"
	AnswerText    AnswerKind = "text"
)

// Answer is a tagged union. Exactly one value field is populated, selected by
// Kind; which kinds a question accepts is dictated by its type, so callers
// never have to inspect the runtime shape of the value.
type Answer struct {
	Kind    AnswerKind `json:"kind"`
	Member  string     `json:"member,omitempty"`
	Members []string   `json:"members,omitempty"`
	Choice  string     `json:"choice,omitempty"`
	Text    string     `json:"text,omitempty"`
}

func MemberAnswer(id string) Answer {
	return Answer{Kind: AnswerMember, Member: id}
}

func MembersAnswer(ids []string) Answer {
	return Answer{Kind: AnswerMembers, Members: ids}
}

func ChoiceAnswer(choice string) Answer {
	return Answer{Kind: AnswerChoice, Choice: choice}
}

func TextAnswer(text string) Answer {
	return Answer{Kind: AnswerText, Text: text}
}

// MemberIDs returns the nominated member ids: one for a single pick, all of
// them for a list. Empty for non-member answers.
func (a Answer) MemberIDs() []string {
	switch a.Kind {
	case AnswerMember:
		return []string{a.Member}
	case AnswerMembers:
		return a.Members
	default:
		return nil
	}
}

// UnmarshalJSON validates the tag so a malformed blob fails loudly at load
// time rather than silently producing an empty answer.
func (a *Answer) UnmarshalJSON(data []byte) error {
	type raw Answer
	var parsed raw
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	switch parsed.Kind {
	case AnswerMember, AnswerMembers, AnswerChoice, AnswerText:
		*a = Answer(parsed)
		return nil
	default:
		return fmt.Errorf("unknown answer kind %q", parsed.Kind)
	}
}

// ValidFor reports whether the answer's kind matches the question's type and
// respects its constraints (member count cap, known choice).
func (a Answer) ValidFor(q Question) error {
	switch q.Type {
	case QuestionMemberPick:
		switch a.Kind {
		case AnswerMember:
			if a.Member == "" {
				return fmt.Errorf("empty member id")
			}
		case AnswerMembers:
			if len(a.Members) == 0 {
				return fmt.Errorf("empty member list")
			}
			if q.Max > 0 && len(a.Members) > q.Max {
				return fmt.Errorf("at most %d member(s) allowed", q.Max)
			}
		default:
			return fmt.Errorf("member-pick question needs a member answer, got %q", a.Kind)
		}
	case QuestionMultipleChoice:
		if a.Kind != AnswerChoice {
			return fmt.Errorf("multiple-choice question needs a choice answer, got %q", a.Kind)
		}
		for _, c := range q.Choices {
			if c == a.Choice {
				return nil
			}
		}
		return fmt.Errorf("unknown choice %q", a.Choice)
	case QuestionShortText:
		if a.Kind != AnswerText {
			return fmt.Errorf("short-text question needs a text answer, got %q", a.Kind)
		}
		if a.Text == "" {
			return fmt.Errorf("empty answer")
		}
	default:
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	return nil
}
