// Package beacon implements the object coordinator: the serialized actor
// that owns the object table, the subscriber registry and the
// broadcast-query tracker for the beacon pub/sub and shared-object
// service.
//
// Everything in this package is driven through a single goroutine
// (Coordinator.Run) reading from an operation channel; callers never lock
// the store, the subscriber set or the query tracker directly.
package beacon
