package httpserver

import (
	"net"
	"strings"

	"github.com/phspeters/webserv-sub000/internal/config"
)

// vhostIndex is built once at startup from config.Config and is
// read-only afterwards. Grounded on Caddy's vhostTrie (vhosttrie.go),
// but adapted to this core's narrower invariants: no wildcard
// hostnames, and location matching is a separate, explicit longest-
// prefix scan per SPEC_FULL.md §4.6 rather than a host+path trie walk.
type vhostIndex struct {
	// byAddrPort[addr][port] is the ordered list of virtual hosts bound
	// there; the first entry is that listener's default.
	byAddrPort map[string]map[int][]*config.VirtualHost
}

func newVHostIndex(cfg *config.Config) *vhostIndex {
	idx := &vhostIndex{byAddrPort: make(map[string]map[int][]*config.VirtualHost)}
	for _, vh := range cfg.VirtualHosts {
		m, ok := idx.byAddrPort[vh.BindAddress]
		if !ok {
			m = make(map[int][]*config.VirtualHost)
			idx.byAddrPort[vh.BindAddress] = m
		}
		m[vh.Port] = append(m[vh.Port], vh)
	}
	return idx
}

// defaultFor returns the default virtual host for a listener bound to
// (addr, port) -- the first one declared for that binding.
func (idx *vhostIndex) defaultFor(addr string, port int) *config.VirtualHost {
	hosts := idx.byAddrPort[addr][port]
	if len(hosts) == 0 {
		return nil
	}
	return hosts[0]
}

// resolve implements HostResolver (SPEC_FULL.md §4.5): given the
// listener's bind address/port and the raw Host header, find the
// virtual host whose server_names contains the lower-cased hostname.
// Falls back to 0.0.0.0 bindings on the same port, then to def.
func (idx *vhostIndex) resolve(listenerAddr string, listenerPort int, hostHeader string, def *config.VirtualHost) *config.VirtualHost {
	hostname := stripPort(hostHeader)
	hostname = strings.ToLower(hostname)
	if hostname == "" {
		return def
	}

	if vh := idx.matchIn(listenerAddr, listenerPort, hostname); vh != nil {
		return vh
	}
	if listenerAddr != "0.0.0.0" {
		if vh := idx.matchIn("0.0.0.0", listenerPort, hostname); vh != nil {
			return vh
		}
	}
	return def
}

// matchIn looks for hostname among the virtual hosts at (addr, port).
// A wildcard addr is special: a single 0.0.0.0 socket accepts traffic
// addressed to any local IP, so it must be able to resolve every
// virtual host declared on that port, not only the ones whose own
// bind_address literally reads 0.0.0.0 (ListenerSet collapses all of
// them onto the one wildcard socket).
func (idx *vhostIndex) matchIn(addr string, port int, hostname string) *config.VirtualHost {
	if addr == wildcardAddr {
		for _, byPort := range idx.byAddrPort {
			for _, vh := range byPort[port] {
				for _, name := range vh.ServerNames {
					if name == hostname {
						return vh
					}
				}
			}
		}
		return nil
	}
	for _, vh := range idx.byAddrPort[addr][port] {
		for _, name := range vh.ServerNames {
			if name == hostname {
				return vh
			}
		}
	}
	return nil
}

func stripPort(hostHeader string) string {
	if hostHeader == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(hostHeader); err == nil {
		return h
	}
	return hostHeader
}

// matchLocation implements LocationMatcher (SPEC_FULL.md §4.6): the
// longest prefix location whose path is segment-aligned with the
// request path.
func matchLocation(vh *config.VirtualHost, reqPath string) *config.Location {
	var best *config.Location
	for _, loc := range vh.Locations {
		if locationMatches(loc.Path, reqPath) {
			if best == nil || len(loc.Path) > len(best.Path) {
				best = loc
			}
		}
	}
	return best
}

func locationMatches(locPath, reqPath string) bool {
	if !strings.HasPrefix(reqPath, locPath) {
		return false
	}
	if locPath == "/" {
		return true
	}
	if reqPath == locPath {
		return true
	}
	if strings.HasSuffix(locPath, "/") {
		return true
	}
	return reqPath[len(locPath)] == '/'
}
