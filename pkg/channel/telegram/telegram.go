package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"vfrelay/pkg/bus"
	"vfrelay/pkg/channel"
	"vfrelay/pkg/config"
	"vfrelay/pkg/logger"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const typingRefreshInterval = 4 * time.Second

// Adapter bridges Telegram updates into relay inbound messages and renders
// replies as messages with inline keyboards.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       logger.Component(log, "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in session keys and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and forwards text messages and button taps
// through the shared channel handler, one update at a time.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			if query := update.CallbackQuery; query != nil {
				if err := bot.AnswerCallbackQuery(ctx, tu.CallbackQuery(query.ID)); err != nil {
					a.log.Debug("Failed to answer callback query", "error", err)
				}
			}

			inbound, chatID, ok := a.inboundFromUpdate(update)
			if !ok {
				continue
			}
			a.log.Info("Received message", "chat_id", inbound.ChatID, "sender_id", inbound.SenderID, "kind", inbound.Kind, "content", logger.Preview(inbound.Content))

			stopTyping := a.startTypingIndicator(ctx, bot, chatID)
			err := handler(ctx, inbound, func(ctx context.Context, outbound bus.OutboundMessage) error {
				params, err := renderMessage(chatID, outbound)
				if err != nil {
					return err
				}
				a.log.Info("Sending message", "chat_id", inbound.ChatID, "kind", outbound.Kind, "content", logger.Preview(params.Text))
				if _, err := bot.SendMessage(ctx, params); err != nil {
					return fmt.Errorf("send telegram message: %w", err)
				}
				return nil
			})
			stopTyping()
			if err != nil {
				a.log.Error("Failed to process inbound message", "chat_id", inbound.ChatID, "error", err)
			}
		}
	}
}

// inboundFromUpdate maps a text message or an inline keyboard tap to an
// inbound message. Other updates and disallowed senders are skipped.
func (a *Adapter) inboundFromUpdate(update telego.Update) (bus.InboundMessage, int64, bool) {
	var (
		senderID int64
		chatID   int64
		kind     bus.InboundKind
		content  string
	)

	switch {
	case update.Message != nil:
		message := update.Message
		if message.From == nil {
			a.log.Debug("Ignoring message without sender")
			return bus.InboundMessage{}, 0, false
		}
		senderID, chatID = message.From.ID, message.Chat.ID
		kind, content = bus.InboundMessageKind, strings.TrimSpace(message.Text)
	case update.CallbackQuery != nil:
		query := update.CallbackQuery
		senderID, chatID = query.From.ID, query.From.ID
		// Reply in the chat that shows the keyboard, which may be a group.
		if query.Message != nil {
			if chat := query.Message.GetChat(); chat.ID != 0 {
				chatID = chat.ID
			}
		}
		kind, content = bus.InboundPostbackKind, strings.TrimSpace(query.Data)
	default:
		return bus.InboundMessage{}, 0, false
	}

	if content == "" {
		return bus.InboundMessage{}, 0, false
	}

	sender := strconv.FormatInt(senderID, 10)
	if !a.senderAllowed(sender) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", sender)
		return bus.InboundMessage{}, 0, false
	}

	return bus.InboundMessage{
		Channel:  channelName,
		SenderID: sender,
		ChatID:   strconv.FormatInt(chatID, 10),
		Kind:     kind,
		Content:  content,
		Metadata: map[string]string{
			"update_id": strconv.Itoa(update.UpdateID),
		},
	}, chatID, true
}

// renderMessage turns a reply into send parameters. Choices become an inline
// keyboard, one button per row, whose callback data is the button name.
func renderMessage(chatID int64, outbound bus.OutboundMessage) (*telego.SendMessageParams, error) {
	switch outbound.Kind {
	case bus.OutboundText:
		text := strings.TrimSpace(outbound.Content)
		if text == "" {
			return nil, errors.New("text reply is empty")
		}
		return tu.Message(tu.ID(chatID), text), nil
	case bus.OutboundChoice:
		if len(outbound.Choices) == 0 {
			return nil, errors.New("choice reply has no buttons")
		}

		text := strings.TrimSpace(outbound.Title)
		if subtitle := strings.TrimSpace(outbound.Subtitle); subtitle != "" {
			text = strings.TrimSpace(text + "\n" + subtitle)
		}
		if text == "" {
			text = "Choose an option:"
		}

		rows := make([][]telego.InlineKeyboardButton, 0, len(outbound.Choices))
		for _, choice := range outbound.Choices {
			rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton(choice).WithCallbackData(choice)))
		}
		return tu.Message(tu.ID(chatID), text).WithReplyMarkup(tu.InlineKeyboard(rows...)), nil
	default:
		return nil, fmt.Errorf("unsupported reply kind %q", outbound.Kind)
	}
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// startTypingIndicator sends an initial typing action and refreshes it periodically
// until the returned cancel function is called.
func (a *Adapter) startTypingIndicator(ctx context.Context, bot *telego.Bot, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}
