// Package core contains the relay domain contracts, entities, and state
// machine rules. Lower-level adapters and stores depend on this package; core
// must not depend on transport-specific or storage-specific adapters.
package core
