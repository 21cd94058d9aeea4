// Package tally computes a run's results. Compute is pure: it reads
// questions and submissions and never touches the store, so the lifecycle
// engine can freeze its output into the document at the start of the reveal
// and replay it without recomputation.
package tally

import (
	"math"
	"sort"
	"time"

	"awards/bot/internal/document"
)

// DefaultTopN is the ranked-list cut applied when the configured value is
// missing or nonsense.
const DefaultTopN = 3

// landslideThreshold: rank-1 share of total votes at or above this is a
// landslide.
const landslideThreshold = 0.6

// Compute tallies every question over every submission. Determinism is part
// of the contract: submissions iterate in sorted user-id order and ranked
// lists break count ties by key, so two invocations over the same run are
// identical. Chaos ties resolve to the first candidate in question order.
func Compute(run *document.Run, topN int, now time.Time) document.Results {
	if topN <= 0 {
		topN = DefaultTopN
	}

	questions := run.SortedQuestions()
	userIDs := make([]string, 0, len(run.Submissions))
	for id := range run.Submissions {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	overall := map[string]int{}
	var overallOrder []string

	perQuestion := make([]document.QuestionResult, 0, len(questions))
	for _, q := range questions {
		counts := map[string]int{}
		var order []string
		total := 0

		record := func(key string) {
			if _, seen := counts[key]; !seen {
				order = append(order, key)
			}
			counts[key]++
			total++
		}

		for _, uid := range userIDs {
			answer, ok := run.Submissions[uid].Answers[q.ID]
			if !ok {
				continue
			}
			switch q.Type {
			case document.QuestionMemberPick:
				// A list answer fans out: one full count per listed member.
				for _, member := range answer.MemberIDs() {
					record(member)
					if _, seen := overall[member]; !seen {
						overallOrder = append(overallOrder, member)
					}
					overall[member]++
				}
			case document.QuestionMultipleChoice:
				record(answer.Choice)
			case document.QuestionShortText:
				// Free text is never ranked; it only counts participation.
				total++
			}
		}

		result := document.QuestionResult{
			QuestionID: q.ID,
			Text:       q.Text,
			Type:       q.Type,
			TotalVotes: total,
		}
		if q.Type != document.QuestionShortText {
			ranked := rank(counts)
			result.UniqueKeys = len(ranked)
			if len(ranked) >= 2 {
				gap := ranked[0].Count - ranked[1].Count
				result.ClosestGap = &gap
			}
			if total > 0 && len(ranked) > 0 {
				result.Landslide = float64(ranked[0].Count)/float64(total) >= landslideThreshold
			}
			if len(ranked) > topN {
				ranked = ranked[:topN]
			}
			if total > 0 {
				for i := range ranked {
					ranked[i].Pct = round2(float64(ranked[i].Count) / float64(total) * 100)
				}
			}
			result.Top = ranked
		}
		perQuestion = append(perQuestion, result)
	}

	return document.Results{
		ComputedAt:  now.UTC(),
		Submissions: len(run.Submissions),
		PerQuestion: perQuestion,
		Chaos:       chaos(perQuestion, overall, overallOrder),
	}
}

func rank(counts map[string]int) []document.RankedEntry {
	entries := make([]document.RankedEntry, 0, len(counts))
	for key, count := range counts {
		entries = append(entries, document.RankedEntry{Key: key, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	return entries
}

func chaos(perQuestion []document.QuestionResult, overall map[string]int, overallOrder []string) document.Chaos {
	var out document.Chaos

	for _, r := range perQuestion {
		if r.ClosestGap == nil {
			continue
		}
		if out.ClosestRace == nil || *r.ClosestGap < out.ClosestRace.Value {
			out.ClosestRace = &document.ChaosPick{QuestionID: r.QuestionID, Text: r.Text, Value: *r.ClosestGap}
		}
	}

	for _, r := range perQuestion {
		if r.Type == document.QuestionShortText {
			continue
		}
		if out.MostChaotic == nil || r.UniqueKeys > out.MostChaotic.Value {
			out.MostChaotic = &document.ChaosPick{QuestionID: r.QuestionID, Text: r.Text, Value: r.UniqueKeys}
		}
	}

	// Member-pick nominations only; other answer kinds never feed this.
	best := -1
	for _, member := range overallOrder {
		if overall[member] > best {
			best = overall[member]
			out.MostNominated = member
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
