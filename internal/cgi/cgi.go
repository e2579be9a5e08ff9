// Package cgi implements the CGI subsystem described in SPEC_FULL.md
// §4.11: spawning a script, owning its stdin/stdout pipes as raw,
// non-blocking file descriptors, and exposing it as a small state
// machine the reactor-driven event loop can step forward on each
// readiness event. It does not itself block or spawn goroutines.
package cgi

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/phspeters/webserv-sub000/internal/logging"
)

// State is the CGI child's lifecycle tag (spec.md §3/§4.11).
type State int

const (
	Idle State = iota
	WritingBody
	ReadingOutput
	Complete
	Error
)

// allowedExtensions is the fixed CGI script extension set from
// spec.md §4.11; SPEC_FULL.md §3 additionally lets a location name an
// explicit interpreter per extension (Location.CGIInterpreters), which
// does not widen this set.
var allowedExtensions = map[string]bool{"php": true, "py": true, "sh": true}

// ValidateScript checks the pre-spawn conditions of spec.md §4.11 and
// returns the HTTP status to use if validation fails (0 means ok).
func ValidateScript(scriptPath string) (status int) {
	info, err := os.Stat(scriptPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 404
		}
		return 403
	}
	if info.IsDir() {
		return 400
	}
	if !info.Mode().IsRegular() {
		return 403
	}
	if info.Mode().Perm()&0o111 == 0 {
		return 403
	}
	ext := strings.TrimPrefix(filepath.Ext(scriptPath), ".")
	if !allowedExtensions[strings.ToLower(ext)] {
		return 403
	}
	return 0
}

// Process is one spawned CGI child, owned by the Connection that
// spawned it for the duration of the request.
type Process struct {
	Pid int

	StdinFD  int // write end, server -> child stdin; -1 once closed
	StdoutFD int // read end, child stdout -> server; -1 once closed

	State State

	bodyPending  []byte
	bodyOffset   int
	outputBuffer bytes.Buffer

	cmd *exec.Cmd
}

// Env builds the CGI environment for a request, grounded on
// middleware/fastcgi/fastcgi.go's per-request env map construction
// (REQUEST_METHOD, SCRIPT_NAME, QUERY_STRING), trimmed to the minimum
// spec.md §6 requires plus GATEWAY_INTERFACE and SERVER_PROTOCOL.
func Env(method, scriptName, queryString string) []string {
	env := []string{
		"REQUEST_METHOD=" + method,
		"SCRIPT_NAME=" + scriptName,
		"GATEWAY_INTERFACE=CGI/1.1",
		"SERVER_PROTOCOL=HTTP/1.1",
	}
	if queryString != "" {
		env = append(env, "QUERY_STRING="+queryString)
	}
	return env
}

// Spawn forks the script at scriptPath (optionally through
// interpreter, if non-empty), wiring its stdin/stdout to two
// anonymous pipes per spec.md §4.11. The parent-side file
// descriptors are returned non-blocking and ready for the caller to
// register with the reactor; the child-side ends are closed before
// Spawn returns.
func Spawn(scriptPath, interpreter string, env []string, body []byte) (*Process, error) {
	stdinR, stdinW, err := pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := pipe()
	if err != nil {
		_ = unix.Close(stdinR)
		_ = unix.Close(stdinW)
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	var name string
	var args []string
	if interpreter != "" {
		name, args = interpreter, []string{scriptPath}
	} else {
		name, args = scriptPath, nil
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = filepath.Dir(scriptPath)
	cmd.Env = env
	cmd.Stdin = os.NewFile(uintptr(stdinR), "cgi-stdin-r")
	cmd.Stdout = os.NewFile(uintptr(stdoutW), "cgi-stdout-w")
	cmd.Stderr = cmd.Stdout // spec.md §6: stderr merged into stdout

	if err := cmd.Start(); err != nil {
		_ = unix.Close(stdinR)
		_ = unix.Close(stdinW)
		_ = unix.Close(stdoutR)
		_ = unix.Close(stdoutW)
		return nil, err
	}

	// The child now holds its own duplicated copies of the read/write
	// ends it needs; close our references to the child's ends.
	_ = cmd.Stdin.(*os.File).Close()
	_ = cmd.Stdout.(*os.File).Close()

	if err := unix.SetNonblock(stdinW, true); err != nil {
		logging.Log("cgi").Warnw("setting stdin pipe non-blocking", "error", err)
	}
	if err := unix.SetNonblock(stdoutR, true); err != nil {
		logging.Log("cgi").Warnw("setting stdout pipe non-blocking", "error", err)
	}

	p := &Process{
		Pid:         cmd.Process.Pid,
		StdinFD:     stdinW,
		StdoutFD:    stdoutR,
		State:       Idle,
		bodyPending: body,
		cmd:         cmd,
	}
	if len(body) == 0 {
		p.closeStdin()
		p.State = ReadingOutput
	} else {
		p.State = WritingBody
	}
	return p, nil
}

func pipe() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

// WriteBody is called on writable readiness of StdinFD. It writes as
// much of the remaining body as the pipe accepts; when fully written
// it closes the stdin pipe and transitions to ReadingOutput.
func (p *Process) WriteBody() error {
	for p.bodyOffset < len(p.bodyPending) {
		n, err := unix.Write(p.StdinFD, p.bodyPending[p.bodyOffset:])
		if n > 0 {
			p.bodyOffset += n
		}
		if err != nil {
			if err == unix.EAGAIN {
				return nil // not writable right now; wait for next event
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
	p.closeStdin()
	p.State = ReadingOutput
	return nil
}

func (p *Process) closeStdin() {
	if p.StdinFD >= 0 {
		_ = unix.Close(p.StdinFD)
		p.StdinFD = -1
	}
}

// ReadOutput is called on readable readiness of StdoutFD. A zero-byte
// read signals the script is done; the caller should then call
// ParseOutput and transition the Connection to writing the response.
func (p *Process) ReadOutput() (done bool, err error) {
	buf := make([]byte, 64*1024)
	for {
		n, rerr := unix.Read(p.StdoutFD, buf)
		if n > 0 {
			p.outputBuffer.Write(buf[:n])
		}
		if rerr != nil {
			if rerr == unix.EAGAIN {
				return false, nil
			}
			return false, rerr
		}
		if n == 0 {
			p.closeStdout()
			p.State = Complete
			return true, nil
		}
		if n < len(buf) {
			// drained this readiness event; more may arrive later.
			return false, nil
		}
	}
}

func (p *Process) closeStdout() {
	if p.StdoutFD >= 0 {
		_ = unix.Close(p.StdoutFD)
		p.StdoutFD = -1
	}
}

// ParseOutput implements spec.md §4.11/§9's resolved CGI output
// contract: headers up to the first blank line if one is present,
// otherwise the whole buffer is the body.
func ParseOutput(raw []byte) (headers map[string]string, body []byte) {
	headers = make(map[string]string)
	idx := bytes.Index(raw, []byte("\r\n\r\n"))
	sep := 4
	if idx < 0 {
		idx = bytes.Index(raw, []byte("\n\n"))
		sep = 2
	}
	if idx < 0 {
		return headers, raw
	}
	headerBlock := raw[:idx]
	body = raw[idx+sep:]
	for _, line := range bytes.Split(bytes.ReplaceAll(headerBlock, []byte("\r\n"), []byte("\n")), []byte("\n")) {
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(string(line[:colon])))
		value := strings.TrimSpace(string(line[colon+1:]))
		headers[name] = value
	}
	return headers, body
}

// OutputBytes returns the bytes accumulated so far by ReadOutput.
func (p *Process) OutputBytes() []byte {
	return p.outputBuffer.Bytes()
}

// Kill forcibly terminates the child (spec.md §4.11 failure handling:
// pipe write/read error -> SIGKILL the child).
func (p *Process) Kill() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// CloseAll releases both pipe ends, idempotently.
func (p *Process) CloseAll() {
	p.closeStdin()
	p.closeStdout()
}

// Reap performs a non-blocking wait for pid, per spec.md §5
// (SIGCHLD triggers a non-blocking reap loop). ok is false if the
// child has not yet exited.
func Reap(pid int) (ok bool, exitCode int) {
	var ws syscall.WaitStatus
	wpid, err := syscall.Wait4(pid, &ws, syscall.WNOHANG, nil)
	if err != nil || wpid != pid {
		return false, 0
	}
	return true, ws.ExitStatus()
}
