// Package metrics tracks simple process-lifetime counters, supplementing
// the connection/CGI bookkeeping original_source's ServerManager and
// WebServer logged at startup/shutdown but spec.md's distillation dropped
// (SPEC_FULL.md §4.19).
package metrics

import "sync/atomic"

// Counters holds the counts tracked for one running server instance.
type Counters struct {
	acceptedConnections atomic.Int64
	activeConnections   atomic.Int64
	requestsServed      atomic.Int64
	cgiInvocations      atomic.Int64
	timeoutsClosed      atomic.Int64
}

func (c *Counters) ConnectionAccepted() {
	c.acceptedConnections.Add(1)
	c.activeConnections.Add(1)
}

func (c *Counters) ConnectionClosed() {
	c.activeConnections.Add(-1)
}

func (c *Counters) RequestServed() {
	c.requestsServed.Add(1)
}

func (c *Counters) CGIInvoked() {
	c.cgiInvocations.Add(1)
}

func (c *Counters) TimeoutClosed() {
	c.timeoutsClosed.Add(1)
}

// Snapshot is a point-in-time, read-only copy of the counters, suitable
// for logging at shutdown.
type Snapshot struct {
	AcceptedConnections int64
	ActiveConnections   int64
	RequestsServed      int64
	CGIInvocations      int64
	TimeoutsClosed      int64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		AcceptedConnections: c.acceptedConnections.Load(),
		ActiveConnections:   c.activeConnections.Load(),
		RequestsServed:      c.requestsServed.Load(),
		CGIInvocations:      c.cgiInvocations.Load(),
		TimeoutsClosed:      c.timeoutsClosed.Load(),
	}
}
