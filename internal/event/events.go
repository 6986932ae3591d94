package event

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	TypeNodeCreated         = "node.created"
	TypeNodeUpdated         = "node.updated"
	TypeNodeDeleted         = "node.deleted"
	TypeProductPriceChanged = "product.price_changed"
	TypeUserRegistered      = "user.registered"
	TypeTenantUpdated       = "tenant.updated"
	TypeCommentPosted       = "comment.posted"
)

var nodeKinds = map[string]bool{
	"page":    true,
	"article": true,
	"block":   true,
}

var tenantStatuses = map[string]bool{
	"active":    true,
	"suspended": true,
	"archived":  true,
}

const maxCommentBodyLength = 10000

// NodeCreated is emitted when a content node is first persisted.
type NodeCreated struct {
	NodeID   uuid.UUID `json:"node_id"`
	Kind     string    `json:"kind"`
	Title    string    `json:"title"`
	AuthorID uuid.UUID `json:"author_id"`
}

func (e NodeCreated) EventType() string { return TypeNodeCreated }

func (e NodeCreated) Validate() error {
	if e.NodeID == uuid.Nil {
		return missingField("node_id")
	}
	if e.AuthorID == uuid.Nil {
		return missingField("author_id")
	}
	if strings.TrimSpace(e.Title) == "" {
		return missingField("title")
	}
	if !nodeKinds[e.Kind] {
		return invalidFormat("kind", fmt.Sprintf("unknown node kind: %q", e.Kind))
	}
	return nil
}

type NodeUpdated struct {
	NodeID   uuid.UUID `json:"node_id"`
	Revision int64     `json:"revision"`
}

func (e NodeUpdated) EventType() string { return TypeNodeUpdated }

func (e NodeUpdated) Validate() error {
	if e.NodeID == uuid.Nil {
		return missingField("node_id")
	}
	if e.Revision < 1 {
		return outOfRange("revision", "revision must be positive")
	}
	return nil
}

type NodeDeleted struct {
	NodeID uuid.UUID `json:"node_id"`
}

func (e NodeDeleted) EventType() string { return TypeNodeDeleted }

func (e NodeDeleted) Validate() error {
	if e.NodeID == uuid.Nil {
		return missingField("node_id")
	}
	return nil
}

// ProductPriceChanged records a storefront price transition in minor
// currency units.
type ProductPriceChanged struct {
	ProductID     uuid.UUID `json:"product_id"`
	OldPriceCents int64     `json:"old_price_cents"`
	NewPriceCents int64     `json:"new_price_cents"`
	Currency      string    `json:"currency"`
}

func (e ProductPriceChanged) EventType() string { return TypeProductPriceChanged }

func (e ProductPriceChanged) Validate() error {
	if e.ProductID == uuid.Nil {
		return missingField("product_id")
	}
	if e.OldPriceCents < 0 || e.NewPriceCents < 0 {
		return outOfRange("new_price_cents", "prices must be non-negative")
	}
	if len(e.Currency) != 3 || e.Currency != strings.ToUpper(e.Currency) {
		return invalidFormat("currency", "currency must be a 3-letter uppercase ISO code")
	}
	return nil
}

type UserRegistered struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
}

func (e UserRegistered) EventType() string { return TypeUserRegistered }

func (e UserRegistered) Validate() error {
	if e.UserID == uuid.Nil {
		return missingField("user_id")
	}
	if strings.TrimSpace(e.Email) == "" {
		return missingField("email")
	}
	at := strings.Index(e.Email, "@")
	if at < 1 || at == len(e.Email)-1 {
		return invalidFormat("email", "email must contain a local part and a domain")
	}
	return nil
}

// TenantUpdated is the mutation event that drives cross-instance tenant
// cache invalidation.
type TenantUpdated struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Slug     string    `json:"slug"`
	Host     string    `json:"host"`
	Status   string    `json:"status"`
}

func (e TenantUpdated) EventType() string { return TypeTenantUpdated }

func (e TenantUpdated) Validate() error {
	if e.TenantID == uuid.Nil {
		return missingField("tenant_id")
	}
	if strings.TrimSpace(e.Slug) == "" {
		return missingField("slug")
	}
	if !tenantStatuses[e.Status] {
		return invalidFormat("status", fmt.Sprintf("unknown tenant status: %q", e.Status))
	}
	return nil
}

type CommentPosted struct {
	CommentID uuid.UUID `json:"comment_id"`
	NodeID    uuid.UUID `json:"node_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Body      string    `json:"body"`
}

func (e CommentPosted) EventType() string { return TypeCommentPosted }

func (e CommentPosted) Validate() error {
	if e.CommentID == uuid.Nil {
		return missingField("comment_id")
	}
	if e.NodeID == uuid.Nil {
		return missingField("node_id")
	}
	if e.AuthorID == uuid.Nil {
		return missingField("author_id")
	}
	if strings.TrimSpace(e.Body) == "" {
		return missingField("body")
	}
	if utf8.RuneCountInString(e.Body) > maxCommentBodyLength {
		return outOfRange("body", fmt.Sprintf("body exceeds %d characters", maxCommentBodyLength))
	}
	return nil
}
