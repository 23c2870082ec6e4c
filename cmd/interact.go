package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"vfrelay/pkg/bus"
	"vfrelay/pkg/channel"
	"vfrelay/pkg/config"
	"vfrelay/pkg/console"
	"vfrelay/pkg/dialogue"
	"vfrelay/pkg/logger"
	"vfrelay/pkg/relay"

	"github.com/spf13/cobra"
)

const consoleChannelName = "console"

var (
	promptText string
	consoleID  string
)

var interactCmd = &cobra.Command{
	Use:   "interact [text]",
	Short: "Talk to the dialogue runtime from the terminal",
	Long:  "Sends one message, or starts a line-based chat, through the same relay path the webhook uses, and prints the translated replies.",
	Run: func(cmd *cobra.Command, args []string) {
		input := resolvePrompt(args)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}
		// The console needs a runtime but no chat channel credentials.
		cfg.Channels.Messenger.Enabled = false
		if err := cfg.Validate(); err != nil {
			fmt.Printf("invalid config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)

		runtime, err := dialogue.New(cfg, appLogger)
		if err != nil {
			fmt.Printf("failed to initialize dialogue runtime: %v\n", err)
			return
		}

		handler, err := relay.New(runtime, cfg, nil, appLogger)
		if err != nil {
			fmt.Printf("failed to initialize relay: %v\n", err)
			return
		}

		session := &consoleSession{
			handle:   handler.Handle,
			senderID: strings.TrimSpace(consoleID),
			renderer: console.NewRenderer(),
			out:      cmd.OutOrStdout(),
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if input != "" {
			session.turn(ctx, input)
			return
		}

		fmt.Fprintln(session.out, session.renderer.Header(cfg.Runtime.Provider, relay.NewSessionMapper(cfg.Runtime.Session).Key(consoleChannelName, session.senderID)))
		session.repl(ctx, os.Stdin)
	},
}

func init() {
	rootCmd.AddCommand(interactCmd)
	interactCmd.Flags().StringVarP(&promptText, "prompt", "p", "", "message text to send")
	interactCmd.Flags().StringVar(&consoleID, "user", "local", "sender id used to derive the runtime session")
}

// consoleSession replays the webhook path for a terminal user.
type consoleSession struct {
	handle   channel.Handler
	senderID string
	renderer *console.Renderer
	out      io.Writer

	lastChoices []string
}

// turn sends one input and prints every reply. A numeric answer taps the
// matching button of the previous choice.
func (s *consoleSession) turn(ctx context.Context, input string) {
	kind := bus.InboundMessageKind
	if resolved := console.ResolveChoice(input, s.lastChoices); resolved != strings.TrimSpace(input) {
		input = resolved
		kind = bus.InboundPostbackKind
	}

	var choices []string
	err := s.handle(ctx, bus.InboundMessage{
		Channel:  consoleChannelName,
		SenderID: s.senderID,
		ChatID:   s.senderID,
		Kind:     kind,
		Content:  input,
	}, func(_ context.Context, outbound bus.OutboundMessage) error {
		if outbound.Kind == bus.OutboundChoice {
			choices = outbound.Choices
		}
		_, err := fmt.Fprintln(s.out, s.renderer.Reply(outbound))
		return err
	})
	if err != nil {
		fmt.Fprintln(s.out, s.renderer.Error(err))
	}

	s.lastChoices = choices
}

func (s *consoleSession) repl(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(s.out, s.renderer.Prompt())
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Fprintf(s.out, "input error: %v\n", err)
			}
			return
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if isExitCommand(input) {
			return
		}

		s.turn(ctx, input)
	}
}

func resolvePrompt(args []string) string {
	if value := strings.TrimSpace(promptText); value != "" {
		return value
	}

	if len(args) == 0 {
		return ""
	}

	return strings.TrimSpace(strings.Join(args, " "))
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q":
		return true
	default:
		return false
	}
}
