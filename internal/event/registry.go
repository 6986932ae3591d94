package event

import (
	"encoding/json"
	"fmt"
)

// Registry maps event type tags to payload factories so outbox records
// can be decoded back into strongly typed events.
type Registry struct {
	factories map[string]func() DomainEvent
}

// NewRegistry returns a registry preloaded with every built-in variant.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]func() DomainEvent)}
	r.Register(TypeNodeCreated, func() DomainEvent { return &NodeCreated{} })
	r.Register(TypeNodeUpdated, func() DomainEvent { return &NodeUpdated{} })
	r.Register(TypeNodeDeleted, func() DomainEvent { return &NodeDeleted{} })
	r.Register(TypeProductPriceChanged, func() DomainEvent { return &ProductPriceChanged{} })
	r.Register(TypeUserRegistered, func() DomainEvent { return &UserRegistered{} })
	r.Register(TypeTenantUpdated, func() DomainEvent { return &TenantUpdated{} })
	r.Register(TypeCommentPosted, func() DomainEvent { return &CommentPosted{} })
	return r
}

func (r *Registry) Register(eventType string, factory func() DomainEvent) {
	r.factories[eventType] = factory
}

func (r *Registry) Known(eventType string) bool {
	_, ok := r.factories[eventType]
	return ok
}

// Decode rebuilds and re-validates a typed event from its serialized
// payload. Unregistered types yield an UNKNOWN_VARIANT error.
func (r *Registry) Decode(eventType string, payload []byte) (DomainEvent, error) {
	factory, ok := r.factories[eventType]
	if !ok {
		return nil, &ValidationError{
			Code:    CodeUnknownVariant,
			Message: fmt.Sprintf("unregistered event type: %q", eventType),
		}
	}

	evt := factory()
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", eventType, err)
	}

	if err := evt.Validate(); err != nil {
		return nil, err
	}

	return evt, nil
}
