// Package events publishes device lifecycle notifications.
//
// The lifecycle coordinator emits an Event whenever a device becomes ACTIVE,
// gets bound or unbound, or reaches REMOVED. A Bus fans each event out to
// its sinks: the CBOR journal on disk, the socket.io namespace publisher,
// the metrics collector and in-memory recorders used by the console and
// tests. Sinks must not block; a slow sink delays every notification.
package events
