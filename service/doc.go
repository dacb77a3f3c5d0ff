// Package service ties the view lifecycle to the rest of the system:
// the store views read from, the journal that keeps view IDs unique, the
// outbox that records finalizations, and the retire ring that defers
// snapshot teardown.
//
// The service keeps only weak references to the views it hands out.
// Owning references belong to callers, or to leases taken on behalf of
// remote clients.
package service
