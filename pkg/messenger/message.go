package messenger

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"vfrelay/pkg/bus"
)

const (
	ButtonPostback      = "postback"
	AttachmentTemplate  = "template"
	TemplateTypeGeneric = "generic"
	MessagingResponse   = "RESPONSE"

	// MaxButtonTitleRunes is the Send API limit for a postback button title.
	MaxButtonTitleRunes = 20
)

// SendRequest is the Send API envelope.
type SendRequest struct {
	Recipient     Party   `json:"recipient"`
	MessagingType string  `json:"messaging_type,omitempty"`
	Message       Message `json:"message"`
}

// Message is either plain text or a template attachment.
type Message struct {
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

type Attachment struct {
	Type    string          `json:"type"`
	Payload TemplatePayload `json:"payload"`
}

type TemplatePayload struct {
	TemplateType string    `json:"template_type"`
	Elements     []Element `json:"elements"`
}

// Element is one card of a generic template.
type Element struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	Buttons  []Button `json:"buttons,omitempty"`
}

type Button struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// TextMessage builds a plain text message.
func TextMessage(text string) Message {
	return Message{Text: text}
}

// ButtonTitle cuts a choice down to the button title limit and reports
// whether it was cut.
func ButtonTitle(choice string) (string, bool) {
	if utf8.RuneCountInString(choice) <= MaxButtonTitleRunes {
		return choice, false
	}
	return string([]rune(choice)[:MaxButtonTitleRunes]), true
}

// GenericTemplate builds a one-card generic template whose buttons are
// postbacks carrying the full choice as payload. Long titles are cut to
// MaxButtonTitleRunes.
func GenericTemplate(title, subtitle string, choices []string) Message {
	buttons := make([]Button, 0, len(choices))
	for _, choice := range choices {
		buttonTitle, _ := ButtonTitle(choice)
		buttons = append(buttons, Button{Type: ButtonPostback, Title: buttonTitle, Payload: choice})
	}

	return Message{
		Attachment: &Attachment{
			Type: AttachmentTemplate,
			Payload: TemplatePayload{
				TemplateType: TemplateTypeGeneric,
				Elements: []Element{{
					Title:    title,
					Subtitle: subtitle,
					Buttons:  buttons,
				}},
			},
		},
	}
}

// Render converts a channel-neutral reply into a Send API message.
func Render(out bus.OutboundMessage) (Message, error) {
	switch out.Kind {
	case bus.OutboundText:
		if out.Content == "" {
			return Message{}, errors.New("text reply is empty")
		}
		return TextMessage(out.Content), nil
	case bus.OutboundChoice:
		if len(out.Choices) == 0 {
			return Message{}, errors.New("choice reply has no buttons")
		}
		return GenericTemplate(out.Title, out.Subtitle, out.Choices), nil
	default:
		return Message{}, fmt.Errorf("unsupported reply kind %q", out.Kind)
	}
}
