package models

type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "ai"
)

// Message is the persisted form of a single conversational utterance.
// Timestamp is epoch seconds; the session store owns the canonical copy and
// always hands out values, never references into its own state.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}
