package query

import (
	"strings"
)

const (
	TypeGetDeliveryProjection = "relay.query.projection.get"
	TypeGetWebhookEvent       = "relay.query.event.get"
	TypeListAudit             = "relay.query.audit.list"
	TypeGetForwardingState    = "relay.query.forwarding.get"
)

const maxAuditLimit = 500

type GetDeliveryProjectionMessage struct {
	ScopeKey string
}

func (GetDeliveryProjectionMessage) Type() string { return TypeGetDeliveryProjection }

func (m GetDeliveryProjectionMessage) Validate() error {
	if strings.TrimSpace(m.ScopeKey) == "" {
		return queryValidationError("scope_key", "scope key is required")
	}
	return nil
}

type GetWebhookEventMessage struct {
	EventID string
}

func (GetWebhookEventMessage) Type() string { return TypeGetWebhookEvent }

func (m GetWebhookEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return queryValidationError("event_id", "event id is required")
	}
	return nil
}

// ListAuditMessage lists a user's audit rows newest first. A zero Limit uses
// the store default.
type ListAuditMessage struct {
	UserID string
	Limit  int
}

func (ListAuditMessage) Type() string { return TypeListAudit }

func (m ListAuditMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Limit > maxAuditLimit {
		return queryValidationError("limit", "limit must be <= 500")
	}
	return nil
}

type GetForwardingStateMessage struct {
	EventID string
}

func (GetForwardingStateMessage) Type() string { return TypeGetForwardingState }

func (m GetForwardingStateMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return queryValidationError("event_id", "event id is required")
	}
	return nil
}
