package notify

import (
	"log/slog"
	"sync"

	"github.com/cuongbtq/market-bridge/internal/domain"
)

// Channel is a live delivery path to one client
type Channel interface {
	Send(event domain.Event) error
	Close() error
}

// Registry binds client keys to their most recent notification channel.
// Pushes are best effort: an absent or closed channel drops the event.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	logger   *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		channels: make(map[string]Channel),
		logger:   logger,
	}
}

// Register maps clientKey to ch, closing any channel it replaces
func (r *Registry) Register(clientKey string, ch Channel) {
	r.mu.Lock()
	old := r.channels[clientKey]
	r.channels[clientKey] = ch
	total := len(r.channels)
	r.mu.Unlock()

	if old != nil && old != ch {
		if err := old.Close(); err != nil {
			r.logger.Debug("Failed to close replaced channel",
				slog.String("client_key", clientKey),
				slog.Any("error", err),
			)
		}
		r.logger.Info("Notification channel replaced",
			slog.String("client_key", clientKey),
		)
	}

	r.logger.Info("Notification channel registered",
		slog.String("client_key", clientKey),
		slog.Int("total_channels", total),
	)
}

// Unregister removes whatever channel is mapped to clientKey
func (r *Registry) Unregister(clientKey string) {
	r.mu.Lock()
	delete(r.channels, clientKey)
	r.mu.Unlock()
}

// Release removes the mapping only if ch is still the registered channel.
// It reports whether the mapping was removed.
func (r *Registry) Release(clientKey string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.channels[clientKey]; ok && current == ch {
		delete(r.channels, clientKey)
		return true
	}
	return false
}

// Push sends event to the channel mapped to clientKey, if any
func (r *Registry) Push(clientKey string, event domain.Event) {
	r.mu.RLock()
	ch := r.channels[clientKey]
	r.mu.RUnlock()

	if ch == nil {
		r.logger.Debug("No channel for client, event dropped",
			slog.String("client_key", clientKey),
			slog.String("type", event.Type),
		)
		return
	}

	if err := ch.Send(event); err != nil {
		r.logger.Debug("Event delivery failed, dropped",
			slog.String("client_key", clientKey),
			slog.String("type", event.Type),
			slog.Any("error", err),
		)
	}
}

// Connected reports whether clientKey currently has a channel
func (r *Registry) Connected(clientKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[clientKey]
	return ok
}

// Len returns the number of registered channels
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// CloseAll closes and removes every channel
func (r *Registry) CloseAll() {
	r.mu.Lock()
	channels := r.channels
	r.channels = make(map[string]Channel)
	r.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}
}
