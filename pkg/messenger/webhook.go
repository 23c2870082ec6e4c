package messenger

// ObjectPage is the webhook object value for page subscriptions.
const ObjectPage = "page"

// WebhookPayload is the body Facebook POSTs to the webhook.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one batched page entry. Messenger delivers one messaging event per entry.
type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

// MessagingEvent is a message or postback from one sender.
type MessagingEvent struct {
	Sender    Party             `json:"sender"`
	Recipient Party             `json:"recipient"`
	Timestamp int64             `json:"timestamp"`
	Message   *ReceivedMessage  `json:"message,omitempty"`
	Postback  *ReceivedPostback `json:"postback,omitempty"`
}

// Party identifies a page-scoped sender or recipient.
type Party struct {
	ID string `json:"id"`
}

// ReceivedMessage is the message part of a messaging event.
type ReceivedMessage struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo,omitempty"`
}

// ReceivedPostback is the postback part of a messaging event.
type ReceivedPostback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}
