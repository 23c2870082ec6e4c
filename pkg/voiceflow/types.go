package voiceflow

import (
	"encoding/json"
	"fmt"
)

// Trace types the relay renders. Every other type is passed through and ignored.
const (
	TraceText   = "text"
	TraceChoice = "choice"
)

// ActionText is the request action type for free user input.
const ActionText = "text"

// Action is the user turn sent to the interact endpoint.
type Action struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// InteractRequest is the body of POST /state/user/{userID}/interact.
type InteractRequest struct {
	Action Action `json:"action"`
}

// TextAction wraps user text as a text action.
func TextAction(input string) Action {
	return Action{Type: ActionText, Payload: input}
}

// Trace is one unit of a runtime reply. Payload is kept raw so unknown trace
// types survive decoding untouched.
type Trace struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TextPayload is the payload of a "text" trace.
type TextPayload struct {
	Message string `json:"message"`
}

// ChoicePayload is the payload of a "choice" trace.
type ChoicePayload struct {
	Buttons []Button `json:"buttons"`
}

// Button is one option of a choice trace.
type Button struct {
	Name string `json:"name"`
}

// Text decodes the payload of a text trace.
func (t Trace) Text() (TextPayload, error) {
	var payload TextPayload
	if err := decodePayload(t, TraceText, &payload); err != nil {
		return TextPayload{}, err
	}
	return payload, nil
}

// Choice decodes the payload of a choice trace.
func (t Trace) Choice() (ChoicePayload, error) {
	var payload ChoicePayload
	if err := decodePayload(t, TraceChoice, &payload); err != nil {
		return ChoicePayload{}, err
	}
	return payload, nil
}

func decodePayload(t Trace, want string, dst any) error {
	if t.Type != want {
		return fmt.Errorf("trace type %q is not %q", t.Type, want)
	}
	if len(t.Payload) == 0 {
		return fmt.Errorf("%s trace has no payload", want)
	}
	if err := json.Unmarshal(t.Payload, dst); err != nil {
		return fmt.Errorf("decode %s trace payload: %w", want, err)
	}
	return nil
}

// NewTextTrace builds a text trace, used by runtimes that only produce prose.
func NewTextTrace(message string) Trace {
	payload, _ := json.Marshal(TextPayload{Message: message})
	return Trace{Type: TraceText, Payload: payload}
}
