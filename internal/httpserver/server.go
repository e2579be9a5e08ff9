package httpserver

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/phspeters/webserv-sub000/internal/cgi"
	"github.com/phspeters/webserv-sub000/internal/config"
	"github.com/phspeters/webserv-sub000/internal/logging"
	"github.com/phspeters/webserv-sub000/internal/metrics"
	"github.com/phspeters/webserv-sub000/internal/reactor"
)

// sweepInterval bounds how long Wait blocks before the server runs its
// idle-connection sweep, independent of any FD becoming ready.
const sweepInterval = 5 * time.Second

// readChunk is how much is read from a client socket per readable event.
const readChunk = 64 * 1024

// Server is the single-threaded event loop tying the reactor, the
// listening sockets, the connection table, and the request handlers
// together, grounded on caddyhttp/httpserver/server.go's NewServer/
// Listen/Serve split but built around one epoll instance instead of
// a goroutine-per-connection net.Listener.Accept loop.
type Server struct {
	reactor   *reactor.Reactor
	listeners *ListenerSet
	table     *ConnectionTable
	vhosts    *vhostIndex
	metrics   *metrics.Counters
	log       interface {
		Infow(string, ...any)
		Warnw(string, ...any)
		Errorw(string, ...any)
		Debugw(string, ...any)
	}
	accessLogs map[*config.VirtualHost]*zap.SugaredLogger
	timeout    time.Duration
	closing    atomic.Bool
}

// NewServer builds a Server from a validated Config. It opens every
// listening socket the config requires but does not yet register
// them with the reactor or begin serving.
func NewServer(cfg *config.Config) (*Server, error) {
	r, err := reactor.New()
	if err != nil {
		return nil, err
	}
	ls, err := NewListenerSet(cfg)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	m := &metrics.Counters{}
	accessLogs := make(map[*config.VirtualHost]*zap.SugaredLogger, len(cfg.VirtualHosts))
	for _, vh := range cfg.VirtualHosts {
		name := vh.BindAddress
		if len(vh.ServerNames) > 0 {
			name = vh.ServerNames[0]
		}
		accessLogs[vh] = logging.AccessLogger(name, vh.AccessLogPath, vh.LogLevel)
	}
	return &Server{
		reactor:    r,
		listeners:  ls,
		table:      NewConnectionTable(r, m),
		vhosts:     newVHostIndex(cfg),
		metrics:    m,
		log:        logging.Log("server"),
		accessLogs: accessLogs,
		timeout:    config.DefaultTimeout,
	}, nil
}

// logAccess emits one access-log line for a completed request, routed
// through the owning virtual host's logger (SPEC_FULL.md §4.13/§4.14).
func (s *Server) logAccess(c *Connection) {
	vh := c.VHost
	if vh == nil {
		vh = c.DefaultVHost
	}
	logger, ok := s.accessLogs[vh]
	if !ok {
		return
	}
	logger.Infow("request",
		"request_id", c.RequestID,
		"remote_addr", c.RemoteAddr,
		"method", c.Request.Method,
		"path", c.Request.Path,
		"status", c.Response.StatusCode,
	)
}

// Metrics exposes the running counters, e.g. for a shutdown log line.
func (s *Server) Metrics() metrics.Snapshot { return s.metrics.Snapshot() }

// Stop requests an orderly shutdown; the current Run call returns once
// its next Wait cycle observes it.
func (s *Server) Stop() { s.closing.Store(true) }

// Run registers every listener with the reactor and drives the event
// loop until Stop is called or Wait returns a fatal error.
func (s *Server) Run() error {
	for _, fd := range s.listeners.FDs() {
		if err := s.reactor.Register(fd, reactor.Readable); err != nil {
			return err
		}
	}
	defer s.listeners.CloseAll()
	defer s.reactor.Close()

	s.log.Infow("server started", "listeners", len(s.listeners.FDs()))
	defer s.log.Infow("server stopped")

	lastSweep := time.Now()
	for !s.closing.Load() {
		events, err := s.reactor.Wait(sweepInterval)
		if err != nil {
			s.log.Errorw("reactor wait failed", "error", err)
			return err
		}
		for _, ev := range events {
			s.dispatchEvent(ev)
		}
		if time.Since(lastSweep) >= sweepInterval {
			if n := s.table.SweepTimeouts(time.Now(), s.timeout); n > 0 {
				s.log.Debugw("closed idle connections", "count", n)
			}
			lastSweep = time.Now()
		}
	}
	return nil
}

func (s *Server) dispatchEvent(ev reactor.Event) {
	if l, ok := s.listeners.Get(ev.FD); ok {
		s.acceptLoop(l)
		return
	}
	if c, ok := s.table.Get(ev.FD); ok {
		s.serviceConnection(c, ev)
		return
	}
	if c, ok := s.table.GetByPipe(ev.FD); ok {
		s.serviceCGI(c, ev.FD, ev)
		return
	}
	// Stale event for an FD already torn down this cycle; ignore.
}

func (s *Server) acceptLoop(l *Listener) {
	for {
		fd, remote, ok, err := Accept(l)
		if err != nil {
			s.log.Warnw("accept failed", "error", err)
			return
		}
		if !ok {
			return
		}
		if _, err := s.table.Create(fd, remote, l.Addr, l.Port, l.DefaultVHost); err != nil {
			s.log.Warnw("registering accepted connection", "error", err)
			_ = unix.Close(fd)
		}
	}
}

func (s *Server) serviceConnection(c *Connection, ev reactor.Event) {
	if ev.Readiness&reactor.PeerClosed != 0 && c.State == StateReading {
		s.table.Close(c)
		return
	}
	switch c.State {
	case StateReading:
		s.handleReadable(c)
	case StateWriting:
		s.handleWritable(c)
	default:
		// A stray event arrived while a CGI child is running; nothing
		// to do on the client socket until the child finishes.
	}
}

func (s *Server) handleReadable(c *Connection) {
	buf := make([]byte, readChunk)
	n, err := unix.Read(c.ClientFD, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		s.table.Close(c)
		return
	}
	if n == 0 {
		s.table.Close(c)
		return
	}
	c.touch()
	c.ReadBuffer = append(c.ReadBuffer, buf[:n]...)
	s.pumpParser(c)
}

// pumpParser feeds c.ReadBuffer through the parser, running the host
// resolution step whenever the parser pauses for it, until the parser
// needs more bytes or reaches a terminal outcome.
func (s *Server) pumpParser(c *Connection) {
	for {
		consumed, status := c.Parser.Feed(c.ReadBuffer)
		c.ReadBuffer = c.ReadBuffer[consumed:]

		switch status {
		case Incomplete:
			return

		case HeadersComplete:
			s.resolveHost(c)
			status = c.Parser.DecideBody(c.VHost.ClientMaxBodySize)
			if status == Incomplete {
				continue
			}
			s.finishRequest(c, status)
			return

		default:
			if status == Success && c.Request.Method != "POST" && c.Request.Method != "PUT" {
				// Only POST/PUT pause at HeadersComplete; every other
				// request has its Host header resolved here.
				s.resolveHost(c)
			}
			s.finishRequest(c, status)
			return
		}
	}
}

// resolveHost implements HostResolver's call site: the parser has just
// finished headers, so the Host header (if any) is known.
func (s *Server) resolveHost(c *Connection) {
	hostHeader, _ := c.Request.Header("host")
	c.VHost = s.vhosts.resolve(c.ListenerAddr, c.ListenerPort, hostHeader, c.DefaultVHost)
}

// finishRequest turns a terminal ParseStatus into a response: either
// dispatching a well-formed request to a handler, or building an error
// page for a malformed one.
func (s *Server) finishRequest(c *Connection, status ParseStatus) {
	if status != Success {
		s.respondError(c, parseStatusCode(status), true)
		return
	}

	loc := matchLocation(c.VHost, c.Request.Path)
	if loc == nil {
		s.respondError(c, 404, false)
		return
	}
	c.Request.LocationMatch = loc

	method := config.Method(c.Request.Method)
	result := Dispatch(loc, method)
	if result.Status != 0 {
		buildErrorResponse(c.Response, c.VHost, c.Request.Version, result.Status)
		if result.AllowHeader != "" {
			c.Response.SetHeader("Allow", result.AllowHeader)
		}
		s.beginWrite(c, c.Request.KeepAlive())
		return
	}

	c.ActiveHandler = result.Kind
	switch result.Kind {
	case HandlerStatic:
		s.runStatic(c, loc)
	case HandlerUpload:
		s.runUpload(c, loc)
	case HandlerDelete:
		s.runDelete(c, loc)
	case HandlerCGI:
		s.runCGI(c, loc)
	}
	s.metrics.RequestServed()
	s.log.Debugw("request dispatched", "request_id", c.RequestID, "method", c.Request.Method, "path", c.Request.Path, "handler", c.ActiveHandler.String())
}

func (s *Server) runStatic(c *Connection, loc *config.Location) {
	result := serveStatic(loc, c.Request.Path, c.Response)
	c.Response.Version = c.Request.Version
	switch {
	case result.Redirect != "":
		c.Response.setStatus(result.Status)
		c.Response.SetHeader("Location", result.Redirect)
	case result.Status != 200:
		buildErrorResponse(c.Response, c.VHost, c.Request.Version, result.Status)
	case result.FilePath != "":
		fd, err := unix.Open(result.FilePath, unix.O_RDONLY, 0)
		if err != nil {
			status := 500
			if errors.Is(err, unix.EACCES) {
				status = 403
			}
			buildErrorResponse(c.Response, c.VHost, c.Request.Version, status)
			break
		}
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			_ = unix.Close(fd)
			buildErrorResponse(c.Response, c.VHost, c.Request.Version, 500)
			break
		}
		c.Response.setStatus(200)
		c.FileFD = fd
		c.FileOffset = 0
		c.FileBytesRemaining = st.Size
	default:
		c.Response.setStatus(200)
		c.Response.Body = result.Inline
	}
	s.beginWrite(c, c.Request.KeepAlive() && !mustCloseAfter(c.Response.StatusCode))
}

func (s *Server) runUpload(c *Connection, loc *config.Location) {
	result := handleUpload(loc, c.Request)
	c.Response.reset()
	c.Response.Version = c.Request.Version
	c.Response.setStatus(result.Status)
	if result.Status >= 200 && result.Status < 300 {
		c.Response.Body = result.Body
		c.Response.ContentType = "text/html; charset=utf-8"
	} else {
		buildErrorResponse(c.Response, c.VHost, c.Request.Version, result.Status)
	}
	s.beginWrite(c, c.Request.KeepAlive() && !mustCloseAfter(c.Response.StatusCode))
}

func (s *Server) runDelete(c *Connection, loc *config.Location) {
	result := handleDelete(loc, c.Request.Path)
	c.Response.reset()
	c.Response.Version = c.Request.Version
	if result.Status == 204 {
		c.Response.setStatus(204)
	} else {
		buildErrorResponse(c.Response, c.VHost, c.Request.Version, result.Status)
	}
	s.beginWrite(c, c.Request.KeepAlive() && !mustCloseAfter(c.Response.StatusCode))
}

func (s *Server) runCGI(c *Connection, loc *config.Location) {
	if c.Request.Method != "GET" && c.Request.Method != "POST" {
		buildErrorResponse(c.Response, c.VHost, c.Request.Version, 405)
		c.Response.SetHeader("Allow", "GET, POST")
		s.beginWrite(c, c.Request.KeepAlive())
		return
	}

	scriptPath := resolveFSPath(loc, c.Request.Path)
	if status := cgi.ValidateScript(scriptPath); status != 0 {
		s.respondError(c, status, false)
		return
	}

	ext := strings.TrimPrefix(filepath.Ext(scriptPath), ".")
	interpreter := loc.CGIInterpreters[ext]

	env := cgi.Env(c.Request.Method, c.Request.Path, c.Request.QueryString)
	if ct, ok := c.Request.Header("content-type"); ok {
		env = append(env, "CONTENT_TYPE="+ct)
	}
	env = append(env, "CONTENT_LENGTH="+strconv.Itoa(len(c.Request.Body)))

	proc, err := cgi.Spawn(scriptPath, interpreter, env, c.Request.Body)
	if err != nil {
		s.log.Warnw("spawning cgi script", "script", scriptPath, "error", err)
		s.respondError(c, 500, false)
		return
	}
	c.CGI = proc
	c.State = StateCgiExec
	s.metrics.CGIInvoked()

	if proc.State == cgi.WritingBody {
		if err := s.table.RegisterPipe(c, proc.StdinFD, reactor.Writable); err != nil {
			s.log.Warnw("registering cgi stdin pipe", "error", err)
			s.respondError(c, 500, false)
			return
		}
	} else {
		if err := s.table.RegisterPipe(c, proc.StdoutFD, reactor.Readable); err != nil {
			s.log.Warnw("registering cgi stdout pipe", "error", err)
			s.respondError(c, 500, false)
			return
		}
	}
}

func (s *Server) serviceCGI(c *Connection, fd int, ev reactor.Event) {
	proc := c.CGI
	if proc == nil {
		s.table.UnregisterPipe(fd)
		return
	}

	switch proc.State {
	case cgi.WritingBody:
		if err := proc.WriteBody(); err != nil {
			s.cgiFailed(c, fd, err)
			return
		}
		if proc.State == cgi.ReadingOutput {
			s.table.UnregisterPipe(fd)
			if err := s.table.RegisterPipe(c, proc.StdoutFD, reactor.Readable); err != nil {
				s.cgiFailed(c, proc.StdoutFD, err)
			}
		}

	case cgi.ReadingOutput:
		done, err := proc.ReadOutput()
		if err != nil {
			s.cgiFailed(c, fd, err)
			return
		}
		if done {
			s.table.UnregisterPipe(fd)
			cgi.Reap(proc.Pid)
			s.finishCGI(c)
		}
	}
}

func (s *Server) cgiFailed(c *Connection, fd int, err error) {
	s.log.Warnw("cgi pipe error", "request_id", c.RequestID, "error", err)
	s.table.UnregisterPipe(fd)
	if c.CGI != nil {
		c.CGI.Kill()
		cgi.Reap(c.CGI.Pid)
		c.CGI.CloseAll()
		c.CGI = nil
	}
	s.respondError(c, 500, true)
}

// finishCGI translates the child's finished stdout into a Response,
// per spec.md §4.11/§9: a "Status" header becomes the response status,
// everything else up to the header/body split becomes response headers.
func (s *Server) finishCGI(c *Connection) {
	headers, body := cgi.ParseOutput(c.CGI.OutputBytes())
	c.CGI.CloseAll()
	c.CGI = nil

	c.Response.reset()
	c.Response.Version = c.Request.Version
	status := 200
	if v, ok := headers["status"]; ok {
		if sc, err := strconv.Atoi(strings.Fields(v)[0]); err == nil {
			status = sc
		}
		delete(headers, "status")
	}
	c.Response.setStatus(status)
	if ct, ok := headers["content-type"]; ok {
		c.Response.ContentType = ct
		delete(headers, "content-type")
	} else {
		c.Response.ContentType = "text/html; charset=utf-8"
	}
	for k, v := range headers {
		c.Response.SetHeader(k, v)
	}
	c.Response.Body = body
	s.beginWrite(c, c.Request.KeepAlive() && !mustCloseAfter(c.Response.StatusCode))
}

// mustCloseAfter reports whether spec.md/SPEC_FULL.md §6's "400, 413,
// and any 5xx are non-keep-alive regardless of the header" rule forces
// the connection closed after a response with this status, independent
// of whatever the client's Connection header asked for.
func mustCloseAfter(status int) bool {
	return status >= 500 || status == 400 || status == 413
}

// respondError builds an error page using whatever virtual host is
// currently known (the default, if resolution never happened) and
// queues it for writing. forceClose is set for malformed requests the
// parser cannot guarantee it can resynchronize after; it is OR'd with
// mustCloseAfter so every 400/413/5xx closes regardless of the caller.
func (s *Server) respondError(c *Connection, code int, forceClose bool) {
	vh := c.VHost
	if vh == nil {
		vh = c.DefaultVHost
	}
	version := c.Request.Version
	if version == "" {
		version = "HTTP/1.1"
	}
	buildErrorResponse(c.Response, vh, version, code)
	keepAlive := !forceClose && !mustCloseAfter(code) && c.Request.KeepAlive()
	s.beginWrite(c, keepAlive)
}

func (s *Server) beginWrite(c *Connection, keepAlive bool) {
	c.closeAfterResponse = !keepAlive
	c.State = StateWriting
	prepareWrite(c, keepAlive)
	if err := s.table.ModifyInterest(c.ClientFD, reactor.Writable); err != nil {
		s.table.Close(c)
	}
}

func (s *Server) handleWritable(c *Connection) {
	done, err := drainWriteBuffer(c)
	if err != nil {
		s.table.Close(c)
		return
	}
	if !done {
		return
	}
	if c.FileFD >= 0 {
		fdone, ferr := streamFileChunk(c)
		if ferr != nil {
			s.table.Close(c)
			return
		}
		if !fdone {
			return
		}
	}
	s.requestComplete(c)
}

func (s *Server) requestComplete(c *Connection) {
	s.logAccess(c)
	if c.closeAfterResponse {
		s.table.Close(c)
		return
	}
	c.resetForKeepAlive()
	if err := s.table.ModifyInterest(c.ClientFD, reactor.Readable); err != nil {
		s.table.Close(c)
		return
	}
	if len(c.ReadBuffer) > 0 {
		// Pipelined request already buffered; process it immediately.
		s.pumpParser(c)
	}
}

func parseStatusCode(status ParseStatus) int {
	switch status {
	case ErrURITooLong:
		return 414
	case ErrMethodNotAllowed:
		return 405
	case ErrVersionNotSupported:
		return 505
	case ErrPayloadTooLarge:
		return 413
	case ErrHeaderTooLarge, ErrTooManyHeaders, ErrInvalidChunkSize, ErrBadRequest:
		return 400
	default:
		return 400
	}
}
