package alert

import (
	"context"
	"log/slog"
	"sync"
)

// Channel is the delivery-channel plugin contract. Send must return an
// error on transport-level failure; the ChannelSet logs it and continues
// fanning out to the other channels.
type Channel interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}

// ChannelSet holds the registered delivery channels and invokes them
// concurrently for one alert, isolating per-channel errors.
type ChannelSet struct {
	mu       sync.Mutex
	channels []Channel
	logger   *slog.Logger
}

func NewChannelSet(logger *slog.Logger) *ChannelSet {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelSet{logger: logger}
}

func (c *ChannelSet) Register(ch Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = append(c.channels, ch)
}

// Dispatch invokes every channel's Send in parallel for one alert and
// waits for all to settle. Per-channel outcomes are only reported through
// logs, never back to the caller.
func (c *ChannelSet) Dispatch(ctx context.Context, a Alert) {
	c.mu.Lock()
	channels := make([]Channel, len(c.channels))
	copy(channels, c.channels)
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			if err := ch.Send(ctx, a); err != nil {
				c.logger.Error("channel send failed",
					slog.String("channel", ch.Name()),
					slog.String("alertId", a.ID),
					slog.String("error", err.Error()))
			}
		}(ch)
	}
	wg.Wait()
}
