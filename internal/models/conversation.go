package models

// Sender identifies who wrote a chat message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"

	// SenderAI is the name older web clients use for the assistant.
	SenderAI Sender = "ai"
)

// ChatMessage is one turn of caller-supplied conversation history.
// The server keeps no chat state between requests.
type ChatMessage struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// FromAssistant reports whether the message was produced by the model.
func (m ChatMessage) FromAssistant() bool {
	return m.Sender == SenderAssistant || m.Sender == SenderAI
}
