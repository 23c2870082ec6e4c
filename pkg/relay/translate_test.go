package relay

import (
	"encoding/json"
	"testing"

	"vfrelay/pkg/bus"
	"vfrelay/pkg/config"
	"vfrelay/pkg/logger"
	"vfrelay/pkg/voiceflow"

	"github.com/stretchr/testify/require"
)

func TestTranslateTextTrace(t *testing.T) {
	messages, err := collect(Translate([]voiceflow.Trace{voiceflow.NewTextTrace("Hi")}, defaultOptions(), logger.Discard()))
	require.NoError(t, err)
	require.Equal(t, []bus.OutboundMessage{{Kind: bus.OutboundText, Content: "Hi"}}, messages)
}

func TestTranslateChoiceTrace(t *testing.T) {
	messages, err := collect(Translate([]voiceflow.Trace{choiceTrace(t, "A", "B", "C")}, defaultOptions(), logger.Discard()))
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, bus.OutboundChoice, messages[0].Kind)
	require.Equal(t, []string{"A", "B", "C"}, messages[0].Choices)
	require.Equal(t, "How can we help you?", messages[0].Title)
	require.Equal(t, "Tap a button to answer.", messages[0].Subtitle)
}

func TestTranslatePreservesOrderAndIgnoresUnknownTraces(t *testing.T) {
	traces := []voiceflow.Trace{
		voiceflow.NewTextTrace("first"),
		{Type: "speak", Payload: json.RawMessage(`{"message":"ignored"}`)},
		choiceTrace(t, "A", "B", "C"),
		{Type: "end"},
		voiceflow.NewTextTrace("last"),
	}

	messages, err := collect(Translate(traces, defaultOptions(), logger.Discard()))
	require.NoError(t, err)
	require.Len(t, messages, 3)
	require.Equal(t, "first", messages[0].Content)
	require.Equal(t, bus.OutboundChoice, messages[1].Kind)
	require.Equal(t, "last", messages[2].Content)
}

func TestTranslateShortChoiceTruncatePolicy(t *testing.T) {
	messages, err := collect(Translate([]voiceflow.Trace{choiceTrace(t, "Yes", "No")}, defaultOptions(), logger.Discard()))
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, []string{"Yes", "No"}, messages[0].Choices)
}

func TestTranslateShortChoiceErrorPolicy(t *testing.T) {
	opts := defaultOptions()
	opts.ShortChoice = config.ShortChoiceError

	traces := []voiceflow.Trace{voiceflow.NewTextTrace("before"), choiceTrace(t, "Yes"), voiceflow.NewTextTrace("after")}
	messages, err := collect(Translate(traces, opts, logger.Discard()))
	require.ErrorIs(t, err, ErrShortChoice)
	require.Len(t, messages, 1)
	require.Equal(t, "before", messages[0].Content)
}

func TestTranslateTruncatesLongChoice(t *testing.T) {
	for _, policy := range []string{config.ShortChoiceTruncate, config.ShortChoiceError} {
		t.Run(policy, func(t *testing.T) {
			opts := defaultOptions()
			opts.ShortChoice = policy

			messages, err := collect(Translate([]voiceflow.Trace{choiceTrace(t, "A", "B", "C", "D")}, opts, logger.Discard()))
			require.NoError(t, err)
			require.Equal(t, []string{"A", "B", "C"}, messages[0].Choices)
		})
	}
}

func TestTranslateEmptyChoice(t *testing.T) {
	messages, err := collect(Translate([]voiceflow.Trace{choiceTrace(t)}, defaultOptions(), logger.Discard()))
	require.NoError(t, err)
	require.Empty(t, messages)

	opts := defaultOptions()
	opts.ShortChoice = config.ShortChoiceError
	_, err = collect(Translate([]voiceflow.Trace{choiceTrace(t)}, opts, logger.Discard()))
	require.ErrorIs(t, err, ErrNoButtons)
}

func TestTranslateHonorsMaxButtons(t *testing.T) {
	opts := defaultOptions()
	opts.MaxButtons = 2

	messages, err := collect(Translate([]voiceflow.Trace{choiceTrace(t, "A", "B", "C")}, opts, logger.Discard()))
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, messages[0].Choices)
}

func TestTranslateMalformedPayload(t *testing.T) {
	traces := []voiceflow.Trace{{Type: voiceflow.TraceChoice, Payload: json.RawMessage(`{"buttons":"nope"}`)}}

	_, err := collect(Translate(traces, defaultOptions(), logger.Discard()))
	require.Error(t, err)
}

func TestTranslateIsLazy(t *testing.T) {
	traces := []voiceflow.Trace{
		voiceflow.NewTextTrace("one"),
		{Type: voiceflow.TraceChoice, Payload: json.RawMessage(`not json`)},
	}

	for msg, err := range Translate(traces, defaultOptions(), logger.Discard()) {
		require.NoError(t, err)
		require.Equal(t, "one", msg.Content)
		break
	}
}

func TestTranslateSkipsEmptyText(t *testing.T) {
	messages, err := collect(Translate([]voiceflow.Trace{voiceflow.NewTextTrace("  ")}, defaultOptions(), logger.Discard()))
	require.NoError(t, err)
	require.Empty(t, messages)
}

func collect(seq func(func(bus.OutboundMessage, error) bool)) ([]bus.OutboundMessage, error) {
	var messages []bus.OutboundMessage
	for msg, err := range seq {
		if err != nil {
			return messages, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func defaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig().Relay)
}

func choiceTrace(t *testing.T, names ...string) voiceflow.Trace {
	t.Helper()

	buttons := make([]voiceflow.Button, 0, len(names))
	for _, name := range names {
		buttons = append(buttons, voiceflow.Button{Name: name})
	}

	payload, err := json.Marshal(voiceflow.ChoicePayload{Buttons: buttons})
	if err != nil {
		t.Fatalf("marshal choice payload: %v", err)
	}
	return voiceflow.Trace{Type: voiceflow.TraceChoice, Payload: payload}
}
