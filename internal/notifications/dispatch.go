package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Dispatcher sends a message through the first channel that is ready and
// accepts it. Channels are tried in registration order: preferred first,
// fallbacks after.
type Dispatcher struct {
	channels  []Channel
	permitted func() bool
	logger    *slog.Logger
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Permitted is the host's "may I show notifications" gate; nil means yes.
	Permitted func() bool
}

// NewDispatcher creates a Dispatcher over channels. Nil channels are skipped
// so optional channels can be passed unconditionally.
func NewDispatcher(logger *slog.Logger, opts DispatcherOptions, channels ...Channel) *Dispatcher {
	list := make([]Channel, 0, len(channels))
	for _, c := range channels {
		if c == nil || isNilChannel(c) {
			continue
		}
		list = append(list, c)
	}
	return &Dispatcher{
		channels:  list,
		permitted: opts.Permitted,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Channels returns the registered channel names in order.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, c := range d.channels {
		names = append(names, c.Name())
	}
	return names
}

// Send delivers msg. It returns nil on the first successful channel,
// ErrPermissionDenied if the host gate is closed, ErrChannelUnavailable if
// no channel was ready, or ErrSendFailure wrapping every channel error.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	if d.permitted != nil && !d.permitted() {
		dispatchTotal.WithLabelValues("denied").Inc()
		d.logger.Warn("Notification permission not granted", "tag", msg.Tag)
		return ErrPermissionDenied
	}

	var (
		attempted int
		errs      []error
	)
	for _, c := range d.channels {
		if err := c.Ready(ctx); err != nil {
			d.logger.Debug("Channel not ready", "channel", c.Name(), "error", err)
			channelSendTotal.WithLabelValues(c.Name(), "not_ready").Inc()
			continue
		}

		attempted++
		if err := safeSend(ctx, c, msg); err != nil {
			channelSendTotal.WithLabelValues(c.Name(), "failed").Inc()
			d.logger.Warn("Channel send failed", "channel", c.Name(), "tag", msg.Tag, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}

		channelSendTotal.WithLabelValues(c.Name(), "sent").Inc()
		dispatchTotal.WithLabelValues("sent").Inc()
		d.logger.Info("Notification dispatched", "channel", c.Name(), "tag", msg.Tag, "title", msg.Title)
		return nil
	}

	if attempted == 0 {
		dispatchTotal.WithLabelValues("unavailable").Inc()
		d.logger.Warn("No notification channel available", "tag", msg.Tag, "channels", len(d.channels))
		return ErrChannelUnavailable
	}

	dispatchTotal.WithLabelValues("failed").Inc()
	return fmt.Errorf("%w: %w", ErrSendFailure, errors.Join(errs...))
}

// safeSend turns a channel panic into an error.
func safeSend(ctx context.Context, c Channel, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel panicked: %v", r)
		}
	}()
	return c.Send(ctx, msg)
}

func isNilChannel(c Channel) bool {
	switch v := c.(type) {
	case *PushChannel:
		return v == nil
	case *DirectChannel:
		return v == nil
	}
	return false
}
