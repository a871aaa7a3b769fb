package models

// TurnLog is the per-turn behavioural record handed in by the external
// simulation loop. Ansuz treats it as opaque input for reflection; only
// the turn number is interpreted.
type TurnLog struct {
	Turn      int      `json:"turn"`
	Summary   string   `json:"summary"`
	Successes []string `json:"successes,omitempty"`
	Failures  []string `json:"failures,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Reward    float64  `json:"reward"`
	Tags      []string `json:"tags,omitempty"`
}
