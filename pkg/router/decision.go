package router

// Match captures a task type whose triggers matched a prompt.
type Match struct {
	TaskType string   `json:"task_type"`
	Score    int      `json:"score"`
	Triggers []string `json:"triggers,omitempty"`
}

// Decision captures how a task type was inferred from a prompt.
type Decision struct {
	TaskType   string   `json:"task_type"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
	Matches    []Match  `json:"matches,omitempty"`
}
