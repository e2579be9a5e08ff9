package httpserver

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/phspeters/webserv-sub000/internal/config"
)

// listenBacklog is the pending-connection queue depth passed to
// listen(2), grounded on caddyhttp/httpserver/server.go's NewServer
// (which delegates to net.Listen's platform default; this server sets
// it explicitly since it builds the socket itself).
const listenBacklog = 1024

// Listener is one bound, listening, non-blocking TCP socket plus the
// virtual host that answers for it when no Host header matches any
// other binding on the same address/port (spec.md §4.5).
type Listener struct {
	FD           int
	Addr         string
	Port         int
	DefaultVHost *config.VirtualHost
}

// ListenerSet is the set of listening sockets a Config requires: one
// wildcard socket for a port that has a 0.0.0.0 binding, otherwise one
// per distinct (bind_address, port) pair across all virtual hosts,
// grounded on vhosttrie.go's per-binding grouping but producing raw
// sockets instead of net.Listeners, since the reactor multiplexes them
// directly by FD.
type ListenerSet struct {
	byFD map[int]*Listener
}

// wildcardAddr is the "all interfaces" bind address. A single socket
// bound here receives traffic addressed to any local IP, so it must
// not coexist with a more specific socket on the same port (the
// kernel would refuse the second bind anyway).
const wildcardAddr = "0.0.0.0"

// NewListenerSet opens and binds the listening sockets cfg requires,
// grouping virtual hosts by port. If any virtual host on
// a port binds 0.0.0.0, exactly one wildcard socket is opened for that
// port and every virtual host declared on it (regardless of its own
// literal bind address) is routed through that socket by vhost.go's
// resolver, matching original_source/src/WebServer.cpp's has_wildcard
// handling. Otherwise one socket per distinct literal address is
// opened. The first virtual host declared for a binding is
// that listener's default, per spec.md §4.5.
func NewListenerSet(cfg *config.Config) (*ListenerSet, error) {
	ls := &ListenerSet{byFD: make(map[int]*Listener)}

	byPort := make(map[int][]*config.VirtualHost)
	var ports []int
	for _, vh := range cfg.VirtualHosts {
		if _, ok := byPort[vh.Port]; !ok {
			ports = append(ports, vh.Port)
		}
		byPort[vh.Port] = append(byPort[vh.Port], vh)
	}

	for _, port := range ports {
		vhosts := byPort[port]

		hasWildcard := false
		for _, vh := range vhosts {
			if vh.BindAddress == wildcardAddr {
				hasWildcard = true
				break
			}
		}

		if hasWildcard {
			fd, err := bindListen(wildcardAddr, port)
			if err != nil {
				ls.CloseAll()
				return nil, fmt.Errorf("binding %s:%d: %w", wildcardAddr, port, err)
			}
			ls.byFD[fd] = &Listener{FD: fd, Addr: wildcardAddr, Port: port, DefaultVHost: vhosts[0]}
			continue
		}

		seen := make(map[string]bool)
		for _, vh := range vhosts {
			if seen[vh.BindAddress] {
				continue
			}
			seen[vh.BindAddress] = true

			fd, err := bindListen(vh.BindAddress, port)
			if err != nil {
				ls.CloseAll()
				return nil, fmt.Errorf("binding %s:%d: %w", vh.BindAddress, port, err)
			}
			ls.byFD[fd] = &Listener{FD: fd, Addr: vh.BindAddress, Port: port, DefaultVHost: vh}
		}
	}
	return ls, nil
}

func bindListen(addr string, port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}

	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() == nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("invalid IPv4 bind address %q", addr)
	}
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip.To4())

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// FDs returns every listening socket's FD, for the caller to register
// with the reactor at startup.
func (ls *ListenerSet) FDs() []int {
	fds := make([]int, 0, len(ls.byFD))
	for fd := range ls.byFD {
		fds = append(fds, fd)
	}
	return fds
}

// Get looks up a Listener by its socket FD.
func (ls *ListenerSet) Get(fd int) (*Listener, bool) {
	l, ok := ls.byFD[fd]
	return l, ok
}

// Accept performs one non-blocking accept(2) on l. ok is false when
// there is nothing to accept right now (EAGAIN).
func Accept(l *Listener) (clientFD int, remoteAddr string, ok bool, err error) {
	nfd, sa, err := unix.Accept(l.FD)
	if err != nil {
		if err == unix.EAGAIN {
			return -1, "", false, nil
		}
		return -1, "", false, err
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		_ = unix.Close(nfd)
		return -1, "", false, err
	}
	remoteAddr = formatSockaddr(sa)
	return nfd, remoteAddr, true, nil
}

func formatSockaddr(sa unix.Sockaddr) string {
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		ip := net.IP(in4.Addr[:])
		return fmt.Sprintf("%s:%d", ip.String(), in4.Port)
	}
	return "unknown"
}

// CloseAll closes every listening socket, for orderly shutdown.
func (ls *ListenerSet) CloseAll() {
	for fd := range ls.byFD {
		_ = unix.Close(fd)
	}
	ls.byFD = make(map[int]*Listener)
}
