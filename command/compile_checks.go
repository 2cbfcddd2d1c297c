package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ResumeForwardingMessage]  = (*ResumeForwardingCommand)(nil)
	_ gocmd.Commander[RecoverForwardingMessage] = (*RecoverForwardingCommand)(nil)
)
