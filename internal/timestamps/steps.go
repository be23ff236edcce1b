package timestamps

import (
	"fmt"

	"tidyoux/timestamper/internal/completion"
)

// Step is one cooking step with the second it starts at.
type Step struct {
	Time int    `json:"time"`
	Text string `json:"text"`
}

// Steps is the object the model is asked to produce.
type Steps struct {
	Steps []Step `json:"steps"`
}

// ParseSteps decodes model output into Steps.
func ParseSteps(content string) (*Steps, error) {
	var steps Steps
	if err := completion.DecodeJSON(content, &steps); err != nil {
		return nil, fmt.Errorf("parse steps: %w", err)
	}
	return &steps, nil
}
