package httpserver

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// serverHeaderValue is sent in every response's Server header.
const serverHeaderValue = "webserv"

// fileStreamChunk is how much of a streamed static file is read from
// disk and pushed into one writable-readiness burst.
const fileStreamChunk = 64 * 1024

// buildHeaderBytes serializes c.Response's status line and headers,
// grounded on caddyhttp/httpserver/server.go's WriteTextResponse shape
// but hand-rolled since this server owns socket writes directly
// instead of handing a net/http.ResponseWriter to middleware.
func buildHeaderBytes(c *Connection, keepAlive bool) []byte {
	resp := c.Response
	var contentLength int64
	if c.FileFD >= 0 {
		contentLength = c.FileBytesRemaining
	} else {
		contentLength = int64(len(resp.Body))
	}

	buf := make([]byte, 0, 256)
	buf = append(buf, fmt.Sprintf("%s %d %s\r\n", resp.Version, resp.StatusCode, resp.StatusMessage)...)
	buf = append(buf, "Date: "+time.Now().UTC().Format(time.RFC1123)+"\r\n"...)
	buf = append(buf, "Server: "+serverHeaderValue+"\r\n"...)
	if resp.ContentType != "" {
		buf = append(buf, "Content-Type: "+resp.ContentType+"\r\n"...)
	}
	buf = append(buf, "Content-Length: "+strconv.FormatInt(contentLength, 10)+"\r\n"...)
	if keepAlive {
		buf = append(buf, "Connection: keep-alive\r\n"...)
	} else {
		buf = append(buf, "Connection: close\r\n"...)
	}

	names := make([]string, 0, len(resp.Headers))
	for k := range resp.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		buf = append(buf, k+": "+resp.Headers[k]+"\r\n"...)
	}
	buf = append(buf, "\r\n"...)
	return buf
}

// prepareWrite assembles c.WriteBuffer from the current Response,
// inlining Body when there is no streamed file backing the response.
func prepareWrite(c *Connection, keepAlive bool) {
	header := buildHeaderBytes(c, keepAlive)
	if c.FileFD >= 0 {
		c.WriteBuffer = header
	} else {
		c.WriteBuffer = append(header, c.Response.Body...)
	}
	c.WriteOffset = 0
}

// drainWriteBuffer pushes as much of c.WriteBuffer as the socket
// accepts right now. done is true once the buffer (header, possibly
// inlined body) has been fully flushed.
func drainWriteBuffer(c *Connection) (done bool, err error) {
	for c.WriteOffset < len(c.WriteBuffer) {
		n, werr := unix.Write(c.ClientFD, c.WriteBuffer[c.WriteOffset:])
		if n > 0 {
			c.WriteOffset += n
			c.touch()
		}
		if werr != nil {
			if werr == unix.EAGAIN {
				return false, nil
			}
			return false, werr
		}
		if n == 0 {
			return false, nil
		}
	}
	return true, nil
}

// streamFileChunk advances a streamed static-file response by reading
// the next chunk from c.FileFD and writing what the socket accepts.
// Grounded on SPEC_FULL.md §9's Connection-owns-its-FDs invariant: the
// file FD is read here but only ConnectionTable.Close/resetForKeepAlive
// ever closes it.
func streamFileChunk(c *Connection) (done bool, err error) {
	if c.FileBytesRemaining <= 0 {
		return true, nil
	}
	buf := make([]byte, fileStreamChunk)
	if int64(len(buf)) > c.FileBytesRemaining {
		buf = buf[:c.FileBytesRemaining]
	}
	n, rerr := unix.Pread(c.FileFD, buf, c.FileOffset)
	if rerr != nil {
		return false, rerr
	}
	if n == 0 {
		return true, nil
	}
	written := 0
	for written < n {
		wn, werr := unix.Write(c.ClientFD, buf[written:n])
		if wn > 0 {
			written += wn
			c.touch()
		}
		if werr != nil {
			if werr == unix.EAGAIN {
				break
			}
			return false, werr
		}
		if wn == 0 {
			break
		}
	}
	c.FileOffset += int64(written)
	c.FileBytesRemaining -= int64(written)
	return c.FileBytesRemaining <= 0, nil
}
