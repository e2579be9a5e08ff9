// Package httpserver implements the HTTP/1.1 connection state machine,
// request parser, virtual-host routing, and request handlers described
// in SPEC_FULL.md §2-4. It is driven entirely by reactor.Reactor
// readiness events; nothing in this package blocks.
package httpserver

import (
	"strings"

	"github.com/phspeters/webserv-sub000/internal/config"
)

// ParseStatus tracks the outcome of incremental parsing.
type ParseStatus int

const (
	Incomplete ParseStatus = iota
	HeadersComplete
	Success
	ErrBadRequest
	ErrURITooLong
	ErrMethodNotAllowed
	ErrVersionNotSupported
	ErrInvalidChunkSize
	ErrHeaderTooLarge
	ErrTooManyHeaders
	ErrPayloadTooLarge
)

// Request is mutated only by RequestParser; everything downstream of
// parsing treats it as read-only.
type Request struct {
	Method       string
	URI          string
	Path         string
	QueryString  string
	Version      string
	Headers      map[string]string // keys already lower-cased
	Body         []byte
	ParseStatus  ParseStatus

	// LocationMatch is a non-owning reference into the owning virtual
	// host's Locations slice; its lifetime is bounded by that of the
	// Config the Connection was resolved against.
	LocationMatch *config.Location
}

func newRequest() *Request {
	return &Request{Headers: make(map[string]string)}
}

// reset clears r for reuse on a keep-alive connection.
func (r *Request) reset() {
	r.Method = ""
	r.URI = ""
	r.Path = ""
	r.QueryString = ""
	r.Version = ""
	for k := range r.Headers {
		delete(r.Headers, k)
	}
	r.Body = nil
	r.ParseStatus = Incomplete
	r.LocationMatch = nil
}

// Header looks up a request header by case-insensitive name.
func (r *Request) Header(name string) (string, bool) {
	v, ok := r.Headers[strings.ToLower(name)]
	return v, ok
}

// KeepAlive reports whether the client requested (or, for HTTP/1.1,
// did not refuse) a persistent connection.
func (r *Request) KeepAlive() bool {
	conn, has := r.Header("connection")
	lc := strings.ToLower(conn)
	switch {
	case strings.Contains(lc, "close"):
		return false
	case strings.Contains(lc, "keep-alive"):
		return true
	default:
		// HTTP/1.0 default is close; HTTP/1.1 default is keep-alive.
		return r.Version == "HTTP/1.1"
	}
}
