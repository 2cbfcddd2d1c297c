package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-webhook-relay/core"
)

type EventReader interface {
	Get(ctx context.Context, eventID string) (core.WebhookEvent, error)
}

type AuditReader interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]core.IntegrationAudit, error)
}

type ForwardingReader interface {
	Get(ctx context.Context, eventID string) (core.ForwardingState, error)
}

type GetDeliveryProjectionQuery struct {
	reader core.ProjectionReader
}

func NewGetDeliveryProjectionQuery(reader core.ProjectionReader) *GetDeliveryProjectionQuery {
	return &GetDeliveryProjectionQuery{reader: reader}
}

func (q *GetDeliveryProjectionQuery) Query(
	ctx context.Context,
	msg GetDeliveryProjectionMessage,
) (core.DeliveryProjection, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryProjection{}, queryDependencyError("query: projection reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.DeliveryProjection{}, err
	}
	scopeKey := strings.TrimSpace(msg.ScopeKey)
	out, err := q.reader.GetProjection(ctx, scopeKey)
	if err != nil {
		return core.DeliveryProjection{}, queryReadError(err, "delivery_projection", scopeKey)
	}
	return out, nil
}

type GetWebhookEventQuery struct {
	reader EventReader
}

func NewGetWebhookEventQuery(reader EventReader) *GetWebhookEventQuery {
	return &GetWebhookEventQuery{reader: reader}
}

func (q *GetWebhookEventQuery) Query(ctx context.Context, msg GetWebhookEventMessage) (core.WebhookEvent, error) {
	if q == nil || q.reader == nil {
		return core.WebhookEvent{}, queryDependencyError("query: event reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.WebhookEvent{}, err
	}
	eventID := strings.TrimSpace(msg.EventID)
	out, err := q.reader.Get(ctx, eventID)
	if err != nil {
		return core.WebhookEvent{}, queryReadError(err, "webhook_event", eventID)
	}
	return out, nil
}

type ListAuditQuery struct {
	reader AuditReader
}

func NewListAuditQuery(reader AuditReader) *ListAuditQuery {
	return &ListAuditQuery{reader: reader}
}

func (q *ListAuditQuery) Query(ctx context.Context, msg ListAuditMessage) ([]core.IntegrationAudit, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: audit reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	out, err := q.reader.ListByUser(ctx, strings.TrimSpace(msg.UserID), msg.Limit)
	if err != nil {
		return nil, core.MapError(err)
	}
	return out, nil
}

type GetForwardingStateQuery struct {
	reader ForwardingReader
}

func NewGetForwardingStateQuery(reader ForwardingReader) *GetForwardingStateQuery {
	return &GetForwardingStateQuery{reader: reader}
}

func (q *GetForwardingStateQuery) Query(
	ctx context.Context,
	msg GetForwardingStateMessage,
) (core.ForwardingState, error) {
	if q == nil || q.reader == nil {
		return core.ForwardingState{}, queryDependencyError("query: forwarding reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.ForwardingState{}, err
	}
	eventID := strings.TrimSpace(msg.EventID)
	out, err := q.reader.Get(ctx, eventID)
	if err != nil {
		return core.ForwardingState{}, queryReadError(err, "forwarding_state", eventID)
	}
	return out, nil
}
