package channel

import (
	"context"

	"vfrelay/pkg/bus"

	"github.com/go-chi/chi/v5"
)

// Sender delivers one reply on the channel that received the inbound message.
type Sender func(context.Context, bus.OutboundMessage) error

// Handler processes one inbound channel message. Replies go through send, one
// call per message, in the order they should reach the user.
type Handler func(ctx context.Context, inbound bus.InboundMessage, send Sender) error

// Adapter bridges one external chat transport into the relay.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}

// Mounter is implemented by adapters that receive events on the gateway's
// HTTP server instead of polling.
type Mounter interface {
	Mount(chi.Router)
}
