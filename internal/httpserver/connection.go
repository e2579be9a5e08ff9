package httpserver

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/phspeters/webserv-sub000/internal/cgi"
	"github.com/phspeters/webserv-sub000/internal/config"
)

// ConnState is the Connection's top-level progress tag (spec.md §3).
type ConnState int

const (
	StateReading ConnState = iota
	StateProcessing
	StateCgiExec
	StateWriting
	StateError
)

// Connection is per-client state, owned exclusively by
// ConnectionTable. Its client_fd is released only through
// ConnectionTable.Close, its file_fd through ConnectionTable.Close or
// resetForKeepAlive, and its CGI pipe FDs by the cgi.Process holding
// them (spec.md §9, "Connection owns its FDs").
type Connection struct {
	ClientFD int
	RemoteAddr string
	RequestID  string

	ListenerAddr string
	ListenerPort int
	DefaultVHost *config.VirtualHost
	VHost        *config.VirtualHost

	LastActivity time.Time

	ReadBuffer  []byte
	WriteBuffer []byte
	WriteOffset int

	Request  *Request
	Response *Response
	Parser   *RequestParser

	State ConnState

	// ActiveHandler records which handler kind is in progress so a
	// readiness event can resume it without a virtual dispatch chain
	// (spec.md §9).
	ActiveHandler HandlerKind

	// Static-file streaming.
	FileFD            int
	FileOffset        int64
	FileBytesRemaining int64

	// CGI child state.
	CGI *cgi.Process

	closeAfterResponse bool
}

func newConnection(clientFD int, remoteAddr string, listenerAddr string, listenerPort int, defaultVHost *config.VirtualHost) *Connection {
	c := &Connection{
		ClientFD:     clientFD,
		RemoteAddr:   remoteAddr,
		RequestID:    uuid.NewString(),
		ListenerAddr: listenerAddr,
		ListenerPort: listenerPort,
		DefaultVHost: defaultVHost,
		VHost:        defaultVHost,
		LastActivity: time.Now(),
		Request:      newRequest(),
		Response:     newResponse(),
		Parser:       newRequestParser(),
		State:        StateReading,
		FileFD:       -1,
	}
	c.Parser.reset(c.Request)
	return c
}

// touch updates last-activity; called on every read or write that
// makes progress (spec.md §5).
func (c *Connection) touch() {
	c.LastActivity = time.Now()
}

// expired reports whether c has been idle longer than timeout.
func (c *Connection) expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(c.LastActivity) > timeout
}

// resetForKeepAlive clears all per-request state so the Connection can
// be reused for the next pipelined/keep-alive request (spec.md §3
// Lifecycles).
func (c *Connection) resetForKeepAlive() {
	c.Request.reset()
	c.Response.reset()
	c.Parser.reset(c.Request)
	c.WriteBuffer = nil
	c.WriteOffset = 0
	c.State = StateReading
	c.ActiveHandler = HandlerNone
	c.VHost = c.DefaultVHost
	if c.FileFD >= 0 {
		_ = unix.Close(c.FileFD)
		c.FileFD = -1
	}
	c.FileOffset = 0
	c.FileBytesRemaining = 0
	c.CGI = nil
}
