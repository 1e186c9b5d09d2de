package migrate

import "time"

// EngineRef identifies an engine on the source cluster. Name is the identity;
// Type and Language are informational.
type EngineRef struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Language string `json:"language,omitempty"`
}

// WorkItem is one engine scheduled for processing in this run.
type WorkItem struct {
	Engine EngineRef
	// Dest is the destination name on the target: prefix + source name.
	Dest string
	// Class is why the engine is in the work set (fresh, retry or overwrite).
	Class Classification
}

// Outcome is the settled result of processing one WorkItem.
type Outcome struct {
	Engine   string
	Dest     string
	Err      error
	Duration time.Duration
	// Warnings are non-fatal problems reported by the import.
	Warnings []string
}

// OK reports whether the unit succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Message returns the failure text recorded in state, or "" on success.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
