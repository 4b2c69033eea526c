package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Surface is a direct notification primitive (desktop toast, terminal,
// in-app banner). Show must call onActivate when the user clicks the
// notification, and return a func that removes it.
type Surface interface {
	Show(ctx context.Context, msg Message, onActivate func()) (dismiss func(), err error)
}

// Focuser brings the host application to the foreground.
type Focuser interface {
	Focus()
}

// FocusFunc adapts a plain function to Focuser.
type FocusFunc func()

// Focus implements Focuser.
func (f FocusFunc) Focus() { f() }

// DirectChannel is the fallback channel. Unlike the push relay it manages
// the notification lifecycle itself: the notification auto-dismisses after
// DisplayFor, and activating it focuses the host and dismisses it.
type DirectChannel struct {
	surface    Surface
	host       Focuser
	displayFor time.Duration
	ready      func() bool
	logger     *slog.Logger
}

// DirectOptions configures a DirectChannel.
type DirectOptions struct {
	DisplayFor time.Duration // default 10s
	// Ready gates the channel; nil means always ready.
	Ready func() bool
}

// NewDirectChannel creates a fallback channel over surface. host may be nil.
func NewDirectChannel(surface Surface, host Focuser, opts DirectOptions, logger *slog.Logger) *DirectChannel {
	if opts.DisplayFor <= 0 {
		opts.DisplayFor = defaultDisplayFor
	}
	return &DirectChannel{
		surface:    surface,
		host:       host,
		displayFor: opts.DisplayFor,
		ready:      opts.Ready,
		logger:     logger,
	}
}

// Name implements Channel.
func (d *DirectChannel) Name() string { return "direct" }

// Ready implements Channel.
func (d *DirectChannel) Ready(_ context.Context) error {
	if d.surface == nil {
		return ErrChannelUnavailable
	}
	if d.ready != nil && !d.ready() {
		return ErrChannelUnavailable
	}
	return nil
}

// Send implements Channel.
func (d *DirectChannel) Send(ctx context.Context, msg Message) error {
	var (
		once      sync.Once
		mu        sync.Mutex
		remove    func()
		dismissed bool
	)
	dismiss := func() {
		once.Do(func() {
			mu.Lock()
			defer mu.Unlock()
			dismissed = true
			if remove != nil {
				remove()
			}
		})
	}
	onActivate := func() {
		if d.host != nil {
			d.host.Focus()
		}
		dismiss()
	}

	rm, err := d.surface.Show(ctx, msg, onActivate)
	if err != nil {
		return fmt.Errorf("show notification: %w", err)
	}

	mu.Lock()
	remove = rm
	// Activated before Show returned: remove immediately.
	if dismissed && remove != nil {
		remove()
	}
	mu.Unlock()

	time.AfterFunc(d.displayFor, dismiss)
	return nil
}

// ConsoleSurface prints notifications to a writer. Useful for headless
// hosts and local development.
type ConsoleSurface struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSurface creates a surface writing to w.
func NewConsoleSurface(w io.Writer) *ConsoleSurface {
	return &ConsoleSurface{w: w}
}

// Show implements Surface.
func (c *ConsoleSurface) Show(_ context.Context, msg Message, _ func()) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.w, "\a[%s] %s: %s\n", msg.Tag, msg.Title, msg.Body); err != nil {
		return nil, err
	}
	return func() {}, nil
}
