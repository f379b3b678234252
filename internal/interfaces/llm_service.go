package interfaces

// Message represents a single message in a chat-style LLM conversation,
// shared by the scorer and embedding filter's prompt construction.
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system".
	Role string

	// Content contains the text content of the message.
	Content string
}
