package domain

// Context is the conversation a turn is decided on. It is never mutated once
// handed to a decision.
type Context struct {
	History   []string `json:"history"`
	Utterance string   `json:"utterance"`
}

// StyleMetadata is produced by the generation service and possibly adjusted
// by the safety reviewer. Length is required; SafetyScore is optional.
type StyleMetadata struct {
	Length      *int     `json:"length"`
	IsQuestion  bool     `json:"is_question"`
	Politeness  float64  `json:"politeness"`
	EmojiCount  int      `json:"emoji_count"`
	SafetyScore *float64 `json:"safety_score,omitempty"`
}

type Candidate struct {
	Text  string        `json:"text"`
	Style string        `json:"style"`
	Meta  StyleMetadata `json:"meta"`
}

// IntPtr and FloatPtr are small helpers for building metadata literals.
func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }
