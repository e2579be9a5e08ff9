// Package reactor implements the single readiness-notification
// interface used by the whole server: one epoll instance, one
// blocking Wait call, level-triggered semantics. It owns no file
// descriptors itself (SPEC_FULL.md §4.1) — ownership lives in
// httpserver.ConnectionTable and httpserver.ListenerSet.
package reactor

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/phspeters/webserv-sub000/internal/logging"
)

// Interest is a subset of {Readable, Writable, PeerClosed, Error}.
type Interest uint32

const (
	Readable Interest = 1 << iota
	Writable
	PeerClosed
	ErrorEvent
)

func (i Interest) toEpoll() uint32 {
	var bits uint32
	if i&Readable != 0 {
		bits |= unix.EPOLLIN
	}
	if i&Writable != 0 {
		bits |= unix.EPOLLOUT
	}
	// RDHUP/ERR/HUP are always reported by the kernel regardless of
	// whether they're requested, but we ask for RDHUP explicitly so
	// level-triggered peer-close is unambiguous from a plain read of 0.
	bits |= unix.EPOLLRDHUP
	return bits
}

func fromEpoll(bits uint32) Interest {
	var i Interest
	if bits&unix.EPOLLIN != 0 {
		i |= Readable
	}
	if bits&unix.EPOLLOUT != 0 {
		i |= Writable
	}
	if bits&(unix.EPOLLRDHUP|unix.EPOLLHUP) != 0 {
		i |= PeerClosed
	}
	if bits&unix.EPOLLERR != 0 {
		i |= ErrorEvent
	}
	return i
}

// Event is one readiness notification returned from Wait.
type Event struct {
	FD        int
	Readiness Interest
}

// Reactor is the process-wide epoll instance.
type Reactor struct {
	epfd int
	log  interface {
		Errorw(string, ...any)
	}
}

// New creates a new epoll instance.
func New() (*Reactor, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Reactor{epfd: fd, log: logging.Log("reactor")}, nil
}

// Register adds fd to the interest set with the given interest.
func (r *Reactor) Register(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: interest.toEpoll(), Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Modify changes the interest set for fd.
func (r *Reactor) Modify(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: interest.toEpoll(), Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Unregister removes fd from the interest set. It is safe to call
// even if fd was already closed out from under the reactor (EBADF
// and ENOENT are swallowed, since Close() on a socket implicitly
// drops it from any epoll set).
func (r *Reactor) Unregister(fd int) error {
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.EBADF || err == unix.ENOENT {
		return nil
	}
	if err != nil {
		r.log.Errorw("epoll_ctl del failed", "fd", fd, "error", err)
	}
	return err
}

// Wait blocks until at least one FD is ready, timeout elapses, or a
// signal interrupts the call. A zero-length, nil-error result means
// the timeout expired or a signal was delivered; callers should run
// their periodic work (timeout sweep) and call Wait again.
func (r *Reactor) Wait(timeout time.Duration) ([]Event, error) {
	events := make([]unix.EpollEvent, 256)
	ms := int(timeout / time.Millisecond)
	if ms < 0 {
		ms = -1
	}
	n, err := unix.EpollWait(r.epfd, events, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Event{
			FD:        int(events[i].Fd),
			Readiness: fromEpoll(events[i].Events),
		})
	}
	return out, nil
}

// Close releases the epoll instance.
func (r *Reactor) Close() error {
	return unix.Close(r.epfd)
}
