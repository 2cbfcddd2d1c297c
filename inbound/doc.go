// Package inbound contains the webhook ingestion controller and its HTTP
// binding.
//
// Every request that carries an event id is claimed in the idempotency
// ledger, whatever its verification outcome, before any other side effect.
// Only the first observation of an id writes an audit row and, when
// accepted, a forwarding row.
package inbound
