package document

import "time"

// Results is the frozen outcome of a run, computed once at the start of the
// reveal and never recomputed.
type Results struct {
	ComputedAt  time.Time        `json:"computed_at"`
	Submissions int              `json:"submissions"`
	PerQuestion []QuestionResult `json:"per_question"`
	Chaos       Chaos            `json:"chaos"`
}

type QuestionResult struct {
	QuestionID string       `json:"qid"`
	Text       string       `json:"text"`
	Type       QuestionType `json:"type"`
	TotalVotes int          `json:"total_votes"`
	UniqueKeys int          `json:"unique_keys"`
	// ClosestGap is rank-1 count minus rank-2 count; absent with fewer than
	// two distinct keys.
	ClosestGap *int          `json:"closest_gap,omitempty"`
	Landslide  bool          `json:"landslide"`
	Top        []RankedEntry `json:"top"`
}

type RankedEntry struct {
	Key   string  `json:"key"`
	Count int     `json:"count"`
	Pct   float64 `json:"pct"`
}

// Chaos carries the cross-question reductions. Ties resolve to the first
// candidate in question order.
type Chaos struct {
	ClosestRace   *ChaosPick `json:"closest_race,omitempty"`
	MostChaotic   *ChaosPick `json:"most_chaotic,omitempty"`
	MostNominated string     `json:"most_nominated,omitempty"`
}

type ChaosPick struct {
	QuestionID string `json:"qid"`
	Text       string `json:"text"`
	Value      int    `json:"value"`
}
