package models

import "time"

// TaskContext is a conversation or work session. It owns its plans in
// creation order; at most one plan is non-terminal at a time.
type TaskContext struct {
	// ID is the unique identifier for the context.
	ID string `json:"id"`

	// ClientID identifies the requesting client.
	ClientID string `json:"client_id"`

	// ProjectID optionally scopes the context to a project.
	ProjectID string `json:"project_id,omitempty"`

	// OriginalText is the request exactly as the user submitted it.
	OriginalText string `json:"original_text"`

	// LanguageCode is the inferred ISO 639-1 language of the request.
	LanguageCode string `json:"language_code,omitempty"`

	// EnglishText is the English translation used for planning.
	EnglishText string `json:"english_text,omitempty"`

	// Quick prefers low-latency model candidates for this context.
	Quick bool `json:"quick,omitempty"`

	// Plans are the attempts made so far, in creation order.
	Plans []*Plan `json:"plans"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActivePlan returns the most recent non-terminal plan, or nil.
func (c *TaskContext) ActivePlan() *Plan {
	for i := len(c.Plans) - 1; i >= 0; i-- {
		if !c.Plans[i].Status.IsTerminal() {
			return c.Plans[i]
		}
	}
	return nil
}

// LastPlan returns the most recently created plan, or nil.
func (c *TaskContext) LastPlan() *Plan {
	if len(c.Plans) == 0 {
		return nil
	}
	return c.Plans[len(c.Plans)-1]
}
