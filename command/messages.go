package command

import (
	"strings"
)

const (
	TypeResumeForwarding  = "relay.command.forwarding.resume"
	TypeRecoverForwarding = "relay.command.forwarding.recover"
)

type ResumeForwardingMessage struct {
	EventID string
}

func (ResumeForwardingMessage) Type() string { return TypeResumeForwarding }

func (m ResumeForwardingMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return commandValidationError("event_id", "event id is required")
	}
	return nil
}

// RecoverForwardingMessage runs one recovery sweep over due and abandoned
// forwarding rows.
type RecoverForwardingMessage struct{}

func (RecoverForwardingMessage) Type() string { return TypeRecoverForwarding }

func (RecoverForwardingMessage) Validate() error { return nil }

type RecoveryResult struct {
	Resumed int
}
