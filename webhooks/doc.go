// Package webhooks contains inbound signature verification, envelope header
// extraction and the forwarding retry policy.
//
// Signatures are HMAC-SHA256 over "{id}.{timestamp}.{payload}" encoded as
// base64 and carried as space separated "v1,<signature>" entries. Any active
// secret matching any provided signature validates the envelope, so secrets
// can rotate without a synchronized cutover.
package webhooks
