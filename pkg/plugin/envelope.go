package plugin

import "time"

// RequestContext carries ambient host signals a plugin may read but must not
// assume are present.
type RequestContext struct {
	UserID             string         `json:"user_id,omitempty"`
	SessionID          string         `json:"session_id,omitempty"`
	ConversationID     string         `json:"conversation_id,omitempty"`
	EmotionalState     map[string]any `json:"emotional_state,omitempty"`
	ActiveGoals        []string       `json:"active_goals,omitempty"`
	MemorySnippets     []string       `json:"memory_snippets,omitempty"`
	ConsciousnessLevel float64        `json:"consciousness_level,omitempty"`
}

// Input is the envelope handed to a plugin's Execute entry point.
// RequiredPermission, when set, names the permission the executing plugin
// must declare before the engine will invoke it.
type Input struct {
	Type               string          `json:"type"`
	Data               any             `json:"data"`
	Context            *RequestContext `json:"context,omitempty"`
	RequestID          string          `json:"request_id,omitempty"`
	RequiredPermission string          `json:"required_permission,omitempty"`
	Timestamp          time.Time       `json:"timestamp"`
}

// Output is the envelope a plugin returns from Execute.
type Output struct {
	Type        string         `json:"type"`
	Data        any            `json:"data"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Performance *Sample        `json:"performance,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NextInput builds the envelope for the next step of an execution chain.
// The output's type and payload move forward while the original context and
// request id are retained for traceability; only the timestamp is fresh.
func NextInput(prev *Input, out *Output) *Input {
	return &Input{
		Type:               out.Type,
		Data:               out.Data,
		Context:            prev.Context,
		RequestID:          prev.RequestID,
		RequiredPermission: prev.RequiredPermission,
		Timestamp:          time.Now(),
	}
}
