// Package config tokenizes and parses the nginx-style .conf grammar
// described in SPEC_FULL.md §4.13/§6 into validated VirtualHost and
// Location records. It has no dependency on the reactor, connection
// table, or any handler — its only contract with the rest of the
// program is the Config value it produces.
package config

import "time"

// Method is one of the three HTTP methods this server ever routes.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodDelete Method = "DELETE"
)

// Location is one routing rule inside a virtual host.
type Location struct {
	Path            string
	Root            string
	Autoindex       bool
	AllowedMethods  map[Method]bool
	CGIEnabled      bool
	CGIInterpreters map[string]string // extension (no dot) -> interpreter path
	Index           string
	Redirect        string
}

// AllowsMethod reports whether m is permitted at this location.
func (l *Location) AllowsMethod(m Method) bool {
	return l.AllowedMethods[m]
}

// AllowHeader renders the Allow header value for this location,
// in a stable order (GET, POST, DELETE).
func (l *Location) AllowHeader() string {
	order := []Method{MethodGet, MethodPost, MethodDelete}
	out := ""
	for _, m := range order {
		if l.AllowedMethods[m] {
			if out != "" {
				out += ", "
			}
			out += string(m)
		}
	}
	return out
}

// VirtualHost is a validated server configuration record.
type VirtualHost struct {
	BindAddress        string
	Port               int
	BindSpecified       bool
	ServerNames        []string
	ClientMaxBodySize  int64
	ErrorPages         map[int]string
	Locations          []*Location
	AccessLogPath      string
	LogLevel           string
}

// Config is the top-level result of parsing a .conf file: an ordered
// list of virtual hosts, in declaration order (declaration order is
// significant: the first virtual host bound to an address/port pair
// is that listener's default).
type Config struct {
	VirtualHosts []*VirtualHost
}

// DefaultClientMaxBodySize is used when a server block does not set
// client_max_body_size.
const DefaultClientMaxBodySize = 1 << 20 // 1 MiB

// DefaultTimeout is the inactivity timeout enforced by the connection
// table sweep (SPEC_FULL.md §5).
const DefaultTimeout = 60 * time.Second
