// Package notify fans notifications out to the configured channels and
// records every attempt for audit.
package notify

import (
	"fmt"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

// Registry keeps a mapping from channel kinds to their implementations.
type Registry struct {
	channels map[domain.ChannelKind]ports.Channel
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{channels: map[domain.ChannelKind]ports.Channel{}}
}

// Register adds or replaces a channel implementation.
func (r *Registry) Register(ch ports.Channel) {
	if r.channels == nil {
		r.channels = map[domain.ChannelKind]ports.Channel{}
	}
	r.channels[ch.Kind()] = ch
}

// Resolve returns a channel by kind or an error if it is absent.
func (r *Registry) Resolve(kind domain.ChannelKind) (ports.Channel, error) {
	if ch, ok := r.channels[kind]; ok {
		return ch, nil
	}
	return nil, fmt.Errorf("channel %s is not registered", kind)
}
