package event

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rustok/internal/constants"
)

func validNodeCreated() NodeCreated {
	return NodeCreated{
		NodeID:   uuid.New(),
		Kind:     "article",
		Title:    "Launch announcement",
		AuthorID: uuid.New(),
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		event    DomainEvent
		wantCode string
	}{
		{
			name:  "valid node created",
			event: validNodeCreated(),
		},
		{
			name: "node created missing title",
			event: NodeCreated{
				NodeID:   uuid.New(),
				Kind:     "page",
				Title:    "   ",
				AuthorID: uuid.New(),
			},
			wantCode: CodeMissingField,
		},
		{
			name: "node created unknown kind",
			event: NodeCreated{
				NodeID:   uuid.New(),
				Kind:     "gallery",
				Title:    "Photos",
				AuthorID: uuid.New(),
			},
			wantCode: CodeInvalidFormat,
		},
		{
			name:     "node updated zero revision",
			event:    NodeUpdated{NodeID: uuid.New(), Revision: 0},
			wantCode: CodeOutOfRange,
		},
		{
			name:  "node deleted valid",
			event: NodeDeleted{NodeID: uuid.New()},
		},
		{
			name:     "node deleted nil id",
			event:    NodeDeleted{},
			wantCode: CodeMissingField,
		},
		{
			name: "price change negative price",
			event: ProductPriceChanged{
				ProductID:     uuid.New(),
				OldPriceCents: 1000,
				NewPriceCents: -1,
				Currency:      "EUR",
			},
			wantCode: CodeOutOfRange,
		},
		{
			name: "price change lowercase currency",
			event: ProductPriceChanged{
				ProductID:     uuid.New(),
				OldPriceCents: 1000,
				NewPriceCents: 1200,
				Currency:      "eur",
			},
			wantCode: CodeInvalidFormat,
		},
		{
			name: "user registered malformed email",
			event: UserRegistered{
				UserID:      uuid.New(),
				Email:       "not-an-email",
				DisplayName: "Sam",
			},
			wantCode: CodeInvalidFormat,
		},
		{
			name: "tenant updated unknown status",
			event: TenantUpdated{
				TenantID: uuid.New(),
				Slug:     "acme",
				Host:     "acme.example.com",
				Status:   "paused",
			},
			wantCode: CodeInvalidFormat,
		},
		{
			name: "comment posted body too long",
			event: CommentPosted{
				CommentID: uuid.New(),
				NodeID:    uuid.New(),
				AuthorID:  uuid.New(),
				Body:      strings.Repeat("a", maxCommentBodyLength+1),
			},
			wantCode: CodeOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantCode, verr.Code)
		})
	}
}

func TestNewEnvelope(t *testing.T) {
	tenantID := uuid.New()

	t.Run("valid event is serialized once", func(t *testing.T) {
		evt := validNodeCreated()
		env, err := NewEnvelope(tenantID, evt)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, env.EventID)
		assert.Equal(t, tenantID, env.TenantID)
		assert.Equal(t, TypeNodeCreated, env.EventType)
		assert.NotEmpty(t, env.CorrelationID)
		assert.False(t, env.CreatedAt.IsZero())

		var decoded NodeCreated
		require.NoError(t, json.Unmarshal(env.Payload, &decoded))
		assert.Equal(t, evt, decoded)
	})

	t.Run("nil tenant id is rejected", func(t *testing.T) {
		_, err := NewEnvelope(uuid.Nil, validNodeCreated())
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeMissingField, verr.Code)
		assert.Equal(t, "tenant_id", verr.Field)
	})

	t.Run("invalid event never reaches serialization", func(t *testing.T) {
		_, err := NewEnvelope(tenantID, NodeUpdated{NodeID: uuid.New(), Revision: -3})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeOutOfRange, verr.Code)
	})

	t.Run("oversized payload is rejected", func(t *testing.T) {
		evt := CommentPosted{
			CommentID: uuid.New(),
			NodeID:    uuid.New(),
			AuthorID:  uuid.New(),
			// Multi-byte runes keep the rune count legal while the
			// serialized form blows past the byte ceiling.
			Body: strings.Repeat("é", constants.MaxEventPayloadBytes/2+1),
		}
		_, err := NewEnvelope(tenantID, evt)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodePayloadTooLarge, verr.Code)
	})

	t.Run("options override correlation and actor", func(t *testing.T) {
		actorID := uuid.New()
		env, err := NewEnvelope(tenantID, validNodeCreated(),
			WithCorrelationID("req-42"),
			WithActor(actorID),
		)
		require.NoError(t, err)
		assert.Equal(t, "req-42", env.CorrelationID)
		require.NotNil(t, env.ActorID)
		assert.Equal(t, actorID, *env.ActorID)
	})
}

func TestRegistryDecode(t *testing.T) {
	registry := NewRegistry()

	t.Run("round trips every built-in variant", func(t *testing.T) {
		events := []DomainEvent{
			validNodeCreated(),
			NodeUpdated{NodeID: uuid.New(), Revision: 7},
			NodeDeleted{NodeID: uuid.New()},
			ProductPriceChanged{ProductID: uuid.New(), OldPriceCents: 100, NewPriceCents: 150, Currency: "USD"},
			UserRegistered{UserID: uuid.New(), Email: "sam@example.com", DisplayName: "Sam"},
			TenantUpdated{TenantID: uuid.New(), Slug: "acme", Host: "acme.example.com", Status: "active"},
			CommentPosted{CommentID: uuid.New(), NodeID: uuid.New(), AuthorID: uuid.New(), Body: "First!"},
		}

		for _, evt := range events {
			payload, err := json.Marshal(evt)
			require.NoError(t, err)

			decoded, err := registry.Decode(evt.EventType(), payload)
			require.NoError(t, err, "decode %s", evt.EventType())
			assert.Equal(t, evt.EventType(), decoded.EventType())
		}
	})

	t.Run("unregistered type yields unknown variant", func(t *testing.T) {
		_, err := registry.Decode("node.archived", []byte(`{}`))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeUnknownVariant, verr.Code)
	})

	t.Run("payload failing validation is rejected on decode", func(t *testing.T) {
		payload, err := json.Marshal(NodeUpdated{NodeID: uuid.New(), Revision: 0})
		require.NoError(t, err)

		_, err = registry.Decode(TypeNodeUpdated, payload)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, CodeOutOfRange, verr.Code)
	})

	t.Run("partition key groups tenant and type", func(t *testing.T) {
		env, err := NewEnvelope(uuid.New(), validNodeCreated())
		require.NoError(t, err)
		assert.Equal(t, env.TenantID.String()+":"+TypeNodeCreated, env.PartitionKey())
	})
}
