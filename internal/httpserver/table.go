package httpserver

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/phspeters/webserv-sub000/internal/cgi"
	"github.com/phspeters/webserv-sub000/internal/config"
	"github.com/phspeters/webserv-sub000/internal/logging"
	"github.com/phspeters/webserv-sub000/internal/metrics"
	"github.com/phspeters/webserv-sub000/internal/reactor"
)

// ConnectionTable is the single owner of every Connection, per
// SPEC_FULL.md §9 ("Connection owns its FDs"). Client sockets are
// closed only by Close here; a streamed file FD is closed by Close or
// by Connection.resetForKeepAlive; CGI pipe FDs are closed by the
// cgi.Process that holds them and are dropped from the reactor through
// UnregisterPipe or Close.
type ConnectionTable struct {
	reactor *reactor.Reactor
	metrics *metrics.Counters
	log     interface {
		Debugw(string, ...any)
	}

	conns map[int]*Connection // keyed by ClientFD
	pipes map[int]int         // pipe fd -> owning Connection's ClientFD
}

// NewConnectionTable constructs an empty table bound to r.
func NewConnectionTable(r *reactor.Reactor, m *metrics.Counters) *ConnectionTable {
	return &ConnectionTable{
		reactor: r,
		metrics: m,
		log:     logging.Log("table"),
		conns:   make(map[int]*Connection),
		pipes:   make(map[int]int),
	}
}

// Create registers a freshly accepted client FD for read readiness and
// tracks it. The caller must have already set clientFD non-blocking.
func (t *ConnectionTable) Create(clientFD int, remoteAddr, listenerAddr string, listenerPort int, defaultVHost *config.VirtualHost) (*Connection, error) {
	if err := t.reactor.Register(clientFD, reactor.Readable); err != nil {
		return nil, err
	}
	c := newConnection(clientFD, remoteAddr, listenerAddr, listenerPort, defaultVHost)
	t.conns[clientFD] = c
	t.metrics.ConnectionAccepted()
	return c, nil
}

// Get looks up a Connection by its client FD.
func (t *ConnectionTable) Get(fd int) (*Connection, bool) {
	c, ok := t.conns[fd]
	return c, ok
}

// GetByPipe looks up the Connection owning a registered CGI pipe FD.
func (t *ConnectionTable) GetByPipe(fd int) (*Connection, bool) {
	clientFD, ok := t.pipes[fd]
	if !ok {
		return nil, false
	}
	return t.Get(clientFD)
}

// ModifyInterest changes the epoll interest set for a client FD, e.g.
// switching from Readable (reading a request) to Writable (draining a
// response).
func (t *ConnectionTable) ModifyInterest(fd int, interest reactor.Interest) error {
	return t.reactor.Modify(fd, interest)
}

// RegisterPipe adds a CGI pipe FD to the reactor and records which
// Connection it belongs to, so dispatch can route its readiness events.
func (t *ConnectionTable) RegisterPipe(c *Connection, fd int, interest reactor.Interest) error {
	if err := t.reactor.Register(fd, interest); err != nil {
		return err
	}
	t.pipes[fd] = c.ClientFD
	return nil
}

// ModifyPipe changes the interest set for an already-registered pipe FD.
func (t *ConnectionTable) ModifyPipe(fd int, interest reactor.Interest) error {
	return t.reactor.Modify(fd, interest)
}

// UnregisterPipe drops fd from the reactor and the pipe index. It does
// not close fd; callers close pipe FDs through cgi.Process, which owns
// them until the Connection's next reset or Close.
func (t *ConnectionTable) UnregisterPipe(fd int) {
	_ = t.reactor.Unregister(fd)
	delete(t.pipes, fd)
}

// Close tears down c completely: both its CGI pipe FDs (if any), its
// streamed file FD (if any), and its client socket, unregistering each
// from the reactor first. Safe to call at most once per Connection;
// callers must drop their reference afterward.
func (t *ConnectionTable) Close(c *Connection) {
	if c.CGI != nil {
		if c.CGI.StdinFD >= 0 {
			t.UnregisterPipe(c.CGI.StdinFD)
		}
		if c.CGI.StdoutFD >= 0 {
			t.UnregisterPipe(c.CGI.StdoutFD)
		}
		c.CGI.Kill()
		cgi.Reap(c.CGI.Pid)
		c.CGI.CloseAll()
		c.CGI = nil
	}
	if c.FileFD >= 0 {
		_ = unix.Close(c.FileFD)
		c.FileFD = -1
	}
	_ = t.reactor.Unregister(c.ClientFD)
	_ = unix.Close(c.ClientFD)
	delete(t.conns, c.ClientFD)
	t.metrics.ConnectionClosed()
}

// SweepTimeouts closes every Connection idle longer than timeout and
// returns how many were closed, for the caller to log (spec.md §5).
func (t *ConnectionTable) SweepTimeouts(now time.Time, timeout time.Duration) int {
	var expired []*Connection
	for _, c := range t.conns {
		if c.expired(now, timeout) {
			expired = append(expired, c)
		}
	}
	for _, c := range expired {
		t.log.Debugw("closing idle connection", "request_id", c.RequestID, "remote_addr", c.RemoteAddr)
		t.metrics.TimeoutClosed()
		t.Close(c)
	}
	return len(expired)
}

// Len reports the number of tracked connections, for diagnostics.
func (t *ConnectionTable) Len() int {
	return len(t.conns)
}
