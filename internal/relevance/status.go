package relevance

import "fmt"

// Status tracks where an item is in the relevance state machine.
type Status string

const (
	// StatusCollected is the initial state of every item.
	StatusCollected Status = "collected"

	// StatusStage1Evaluated means the screen has run. A failed screen
	// passes through here on its way to StatusStage1Rejected.
	StatusStage1Evaluated Status = "stage1_evaluated"

	// StatusStage1Rejected means the screen scored below threshold or failed.
	StatusStage1Rejected Status = "stage1_rejected"

	// StatusStage2Evaluated means the full analysis returned a score.
	StatusStage2Evaluated Status = "stage2_evaluated"

	StatusIncluded       Status = "included"
	StatusExcluded       Status = "excluded"
	StatusAnalysisFailed Status = "analysis_failed"
)

var transitions = map[Status][]Status{
	StatusCollected:       {StatusStage1Evaluated},
	StatusStage1Evaluated: {StatusStage1Rejected, StatusStage2Evaluated, StatusAnalysisFailed},
	StatusStage2Evaluated: {StatusIncluded, StatusExcluded},
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Verdict is the per-item outcome of a relevance analysis. Verdicts belong
// to a single run and are never persisted.
type Verdict struct {
	ItemID       string   `json:"item_id"`
	Status       Status   `json:"status"`
	Stage1Score  float64  `json:"stage1_score"`
	Stage1Passed bool     `json:"stage1_passed"`
	Stage2Score  *float64 `json:"stage2_score,omitempty"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
	Rationale    string   `json:"rationale,omitempty"`
	Included     bool     `json:"included"`
	Err          string   `json:"error,omitempty"`
}

// Score is the most refined score available: stage 2 when present.
func (v *Verdict) Score() float64 {
	if v.Stage2Score != nil {
		return *v.Stage2Score
	}
	return v.Stage1Score
}

func (v *Verdict) advance(to Status) error {
	if !CanTransition(v.Status, to) {
		return fmt.Errorf("invalid relevance transition %s -> %s", v.Status, to)
	}
	v.Status = to
	return nil
}
