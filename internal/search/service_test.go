package search

import (
	"testing"
	"time"

	"awards/bot/internal/document"
)

func archiveFixture() []document.ArchiveEntry {
	return []document.ArchiveEntry{
		{
			ID:   "g1-100",
			Name: "Summer Awards 2024",
			Questions: []document.Question{
				{ID: "q1", Text: "Most helpful member"},
			},
			EndedAt: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:   "g1-200",
			Name: "Winter Awards 2024",
			Questions: []document.Question{
				{ID: "q1", Text: "Best meme of the year"},
			},
			EndedAt: time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:   "g1-300",
			Name: "Summer Awards 2025",
			Questions: []document.Question{
				{ID: "q1", Text: "Most helpful member"},
			},
			EndedAt: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestScanMatchesNameCaseInsensitive(t *testing.T) {
	svc := New(nil)
	matches := svc.Search(archiveFixture(), "WINTER", 10)
	if len(matches) != 1 || matches[0].RunID != "g1-200" {
		t.Fatalf("matches = %+v", matches)
	}
}

func TestScanMatchesQuestionTextWithSnippet(t *testing.T) {
	svc := New(nil)
	matches := svc.Search(archiveFixture(), "meme", 10)
	if len(matches) != 1 || matches[0].Snippet != "Best meme of the year" {
		t.Fatalf("matches = %+v", matches)
	}
}

func TestScanNewestFirstAndLimit(t *testing.T) {
	svc := New(nil)
	matches := svc.Search(archiveFixture(), "summer", 1)
	if len(matches) != 1 || matches[0].RunID != "g1-300" {
		t.Fatalf("matches = %+v", matches)
	}
}

func TestScanEmptyQuery(t *testing.T) {
	svc := New(nil)
	if matches := svc.Search(archiveFixture(), "   ", 10); len(matches) != 0 {
		t.Fatalf("matches = %+v", matches)
	}
}

func TestRecordForCollectsWinners(t *testing.T) {
	entry := document.ArchiveEntry{
		ID:      "g1-100",
		GuildID: "g1",
		Name:    "Summer Awards",
		Questions: []document.Question{
			{ID: "q1", Text: "MVP"},
		},
		Results: &document.Results{
			PerQuestion: []document.QuestionResult{
				{QuestionID: "q1", Top: []document.RankedEntry{{Key: "hero", Count: 3}}},
				{QuestionID: "q2"},
			},
		},
	}
	rec := recordFor(entry)
	if len(rec.Winners) != 1 || rec.Winners[0] != "hero" {
		t.Fatalf("winners = %+v", rec.Winners)
	}
	if len(rec.Questions) != 1 || rec.Questions[0] != "MVP" {
		t.Fatalf("questions = %+v", rec.Questions)
	}
}
