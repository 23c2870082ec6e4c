package bus

// InboundKind distinguishes free text from a tapped button.
type InboundKind string

const (
	InboundMessageKind  InboundKind = "message"
	InboundPostbackKind InboundKind = "postback"
)

// OutboundKind is the rendering shape of one reply.
type OutboundKind string

const (
	OutboundText   OutboundKind = "text"
	OutboundChoice OutboundKind = "choice"
)

// InboundMessage is one user turn extracted from a channel event. It lives
// for the duration of one handling pass.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	ChatID     string            `json:"chat_id"`
	Kind       InboundKind       `json:"kind"`
	Content    string            `json:"content"`
	SessionKey string            `json:"session_key"`
	EventID    string            `json:"event_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is one channel-neutral reply. Channels render Text as a
// plain message and Choice as their button template.
type OutboundMessage struct {
	Channel    string       `json:"channel"`
	ChatID     string       `json:"chat_id"`
	SessionKey string       `json:"session_key,omitempty"`
	Kind       OutboundKind `json:"kind"`
	Content    string       `json:"content,omitempty"`
	Title      string       `json:"title,omitempty"`
	Subtitle   string       `json:"subtitle,omitempty"`
	Choices    []string     `json:"choices,omitempty"`
}
