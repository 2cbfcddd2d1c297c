package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-relay/core"
)

type ForwardingService interface {
	Resume(ctx context.Context, eventID string) (core.ForwardingState, error)
	Recover(ctx context.Context) (int, error)
}

type ResumeForwardingCommand struct {
	service ForwardingService
}

func NewResumeForwardingCommand(service ForwardingService) *ResumeForwardingCommand {
	return &ResumeForwardingCommand{service: service}
}

// Execute re-enqueues a non-terminal event and stores its current state.
func (c *ResumeForwardingCommand) Execute(ctx context.Context, msg ResumeForwardingMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: forwarding service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.Resume(ctx, strings.TrimSpace(msg.EventID))
	if err != nil {
		return core.MapError(err)
	}
	storeResult(ctx, out)
	return nil
}

type RecoverForwardingCommand struct {
	service ForwardingService
}

func NewRecoverForwardingCommand(service ForwardingService) *RecoverForwardingCommand {
	return &RecoverForwardingCommand{service: service}
}

func (c *RecoverForwardingCommand) Execute(ctx context.Context, _ RecoverForwardingMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: forwarding service is required")
	}
	resumed, err := c.service.Recover(ctx)
	if err != nil {
		return core.MapError(err)
	}
	storeResult(ctx, RecoveryResult{Resumed: resumed})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
