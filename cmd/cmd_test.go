package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"vfrelay/pkg/bus"
	channelpkg "vfrelay/pkg/channel"
	"vfrelay/pkg/config"
	"vfrelay/pkg/console"

	"gopkg.in/yaml.v3"
)

type testAdapter struct{ name string }

func (a testAdapter) Name() string { return a.name }

func (a testAdapter) Run(_ context.Context, _ channelpkg.Handler) error { return nil }

func TestEnabledAdaptersRequiresAtLeastOneChannel(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if _, err := enabledAdapters(cfg, nil); err == nil {
		t.Fatal("expected error when no channels are enabled")
	}
}

func TestEnabledAdaptersBuildsMessenger(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Channels.Messenger.VerifyToken = "verify"
	cfg.Channels.Messenger.PageAccessToken = "page"

	adapters, err := enabledAdapters(cfg, nil)
	if err != nil {
		t.Fatalf("enabledAdapters error: %v", err)
	}
	if got := enabledChannelNames(adapters); got != "messenger" {
		t.Fatalf("channels = %q, want messenger", got)
	}
}

func TestEnabledAdaptersReportsChannelErrors(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Channels.Messenger.Enabled = false
	cfg.Channels.Telegram.Enabled = true

	_, err := enabledAdapters(cfg, nil)
	if err == nil || !strings.Contains(err.Error(), "telegram") {
		t.Fatalf("error = %v, want telegram configuration error", err)
	}
}

func TestEnabledChannelNames(t *testing.T) {
	t.Parallel()

	adapters := []channelpkg.Adapter{testAdapter{name: "messenger"}, testAdapter{name: "telegram"}}
	if got := enabledChannelNames(adapters); got != "messenger,telegram" {
		t.Fatalf("enabledChannelNames = %q, want %q", got, "messenger,telegram")
	}
}

func TestIsExitCommand(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "exit", want: true},
		{input: " quit ", want: true},
		{input: ":q", want: true},
		{input: "EXIT", want: true},
		{input: "hello", want: false},
		{input: "quit now", want: false},
	}

	for _, tt := range tests {
		if got := isExitCommand(tt.input); got != tt.want {
			t.Fatalf("isExitCommand(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestResolvePrompt(t *testing.T) {
	promptText = ""
	t.Cleanup(func() { promptText = "" })

	if got := resolvePrompt([]string{" hello", "world "}); got != "hello world" {
		t.Fatalf("resolvePrompt args = %q", got)
	}
	if got := resolvePrompt(nil); got != "" {
		t.Fatalf("resolvePrompt empty = %q", got)
	}

	promptText = " flag wins "
	if got := resolvePrompt([]string{"ignored"}); got != "flag wins" {
		t.Fatalf("resolvePrompt flag = %q", got)
	}
}

type scriptedHandler struct {
	inbound []bus.InboundMessage
	replies [][]bus.OutboundMessage
	err     error
}

func (h *scriptedHandler) Handle(ctx context.Context, inbound bus.InboundMessage, send channelpkg.Sender) error {
	turn := len(h.inbound)
	h.inbound = append(h.inbound, inbound)
	if turn < len(h.replies) {
		for _, reply := range h.replies[turn] {
			if err := send(ctx, reply); err != nil {
				return err
			}
		}
	}
	return h.err
}

func TestConsoleSessionTapsNumberedChoice(t *testing.T) {
	handler := &scriptedHandler{replies: [][]bus.OutboundMessage{
		{
			{Kind: bus.OutboundText, Content: "Welcome"},
			{Kind: bus.OutboundChoice, Title: "Pick", Choices: []string{"Sales", "Support"}},
		},
		{{Kind: bus.OutboundText, Content: "Support it is"}},
	}}

	var out bytes.Buffer
	session := &consoleSession{handle: handler.Handle, senderID: "local", renderer: console.NewRenderer(), out: &out}

	session.repl(context.Background(), strings.NewReader("hi\n\n2\nexit\nignored\n"))

	if len(handler.inbound) != 2 {
		t.Fatalf("turns = %d, want 2", len(handler.inbound))
	}
	first, second := handler.inbound[0], handler.inbound[1]
	if first.Kind != bus.InboundMessageKind || first.Content != "hi" || first.Channel != "console" || first.SenderID != "local" {
		t.Fatalf("first inbound = %+v", first)
	}
	if second.Kind != bus.InboundPostbackKind || second.Content != "Support" {
		t.Fatalf("second inbound = %+v", second)
	}

	for _, want := range []string{"Welcome", "[2] Support", "Support it is"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestConsoleSessionPrintsErrors(t *testing.T) {
	handler := &scriptedHandler{err: errors.New("voiceflow returned status 500")}

	var out bytes.Buffer
	session := &consoleSession{handle: handler.Handle, senderID: "local", renderer: console.NewRenderer(), out: &out}
	session.turn(context.Background(), "hello")

	if !strings.Contains(out.String(), "status 500") {
		t.Fatalf("output = %q, want error", out.String())
	}
}

func TestWriteConfigRedactsSecrets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Runtime.Voiceflow.APIKey = "VF.DM.secret"
	cfg.Channels.Messenger.VerifyToken = "verify-secret"
	cfg.Channels.Messenger.PageAccessToken = "page-secret"

	var out bytes.Buffer
	if err := writeConfig(&out, cfg); err != nil {
		t.Fatalf("writeConfig error: %v", err)
	}

	text := out.String()
	for _, secret := range []string{"VF.DM.secret", "verify-secret", "page-secret"} {
		if strings.Contains(text, secret) {
			t.Fatalf("output leaks %q:\n%s", secret, text)
		}
	}
	if !strings.HasSuffix(text, "# valid\n") {
		t.Fatalf("output = %q, want valid marker", text)
	}

	var decoded config.Config
	if err := yaml.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not yaml: %v", err)
	}
	if decoded.Server.Port != 1337 || decoded.Relay.MaxButtons != 3 {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestWriteConfigReportsValidationError(t *testing.T) {
	var out bytes.Buffer
	if err := writeConfig(&out, config.DefaultConfig()); err != nil {
		t.Fatalf("writeConfig error: %v", err)
	}
	if !strings.Contains(out.String(), "# invalid:") {
		t.Fatalf("output = %q, want invalid marker", out.String())
	}
}
