package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-relay/core"
)

var (
	_ gocmd.Querier[GetDeliveryProjectionMessage, core.DeliveryProjection] = (*GetDeliveryProjectionQuery)(nil)
	_ gocmd.Querier[GetWebhookEventMessage, core.WebhookEvent]             = (*GetWebhookEventQuery)(nil)
	_ gocmd.Querier[ListAuditMessage, []core.IntegrationAudit]             = (*ListAuditQuery)(nil)
	_ gocmd.Querier[GetForwardingStateMessage, core.ForwardingState]       = (*GetForwardingStateQuery)(nil)
)
