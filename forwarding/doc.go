// Package forwarding pushes accepted events to the delivery pipeline.
//
// Each event moves through queued -> forwarding -> delivered, or through
// retrying back to forwarding after a transient failure, until the attempt
// budget is spent and the row ends failed. Every transition is persisted as
// a compare-and-swap on (status, attempt_count) before the work it guards
// runs, so a crashed process leaves a row the recovery sweep can resume.
package forwarding
