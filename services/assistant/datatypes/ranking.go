package datatypes

// ProductRanking is the ranking/explanation verdict for one candidate.
type ProductRanking struct {
	// ProductID is the catalog identifier, e.g. "B07H8QMZWV".
	ProductID string `json:"product_id" validate:"required"`

	// Keep reports whether the product should be surfaced to the user.
	Keep bool `json:"keep"`

	// Explanation is a brief conversational justification. Convention is
	// 2-3 sentences; the length is not enforced.
	Explanation string `json:"explanation"`
}

// ProductRankingList is an ordered set of ranking verdicts. Only Keep=true
// entries are surfaced downstream.
type ProductRankingList struct {
	Rankings []ProductRanking `json:"rankings" validate:"dive"`
}

// Kept returns the rankings with Keep=true, preserving order.
func (l ProductRankingList) Kept() []ProductRanking {
	out := make([]ProductRanking, 0, len(l.Rankings))
	for _, r := range l.Rankings {
		if r.Keep {
			out = append(out, r)
		}
	}
	return out
}
