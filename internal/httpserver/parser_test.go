package httpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestParserSimpleGET(t *testing.T) {
	req := newRequest()
	p := newRequestParser()
	p.reset(req)

	raw := []byte("GET /index.html?x=1 HTTP/1.1\r\nHost: example.com\r\n\r\n")
	consumed, status := p.Feed(raw)

	require.Equal(t, len(raw), consumed)
	assert.Equal(t, Success, status)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/index.html", req.Path)
	assert.Equal(t, "x=1", req.QueryString)
	assert.Equal(t, "example.com", req.Headers["host"])
}

func TestRequestParserPausesForHostResolutionOnPOST(t *testing.T) {
	req := newRequest()
	p := newRequestParser()
	p.reset(req)

	raw := []byte("POST /upload HTTP/1.1\r\nHost: example.com\r\nContent-Length: 5\r\n\r\nhello")
	consumed, status := p.Feed(raw)

	assert.Equal(t, HeadersComplete, status)
	assert.Less(t, consumed, len(raw))

	status = p.DecideBody(1 << 20)
	assert.Equal(t, Incomplete, status)

	rest := raw[consumed:]
	n2, status2 := p.Feed(rest)
	assert.Equal(t, Success, status2)
	assert.Equal(t, len(rest), n2)
	assert.Equal(t, "hello", string(req.Body))
}

func TestRequestParserRejectsPayloadOverLimit(t *testing.T) {
	req := newRequest()
	p := newRequestParser()
	p.reset(req)

	raw := []byte("POST /upload HTTP/1.1\r\nHost: example.com\r\nContent-Length: 100\r\n\r\n")
	_, status := p.Feed(raw)
	require.Equal(t, HeadersComplete, status)

	status = p.DecideBody(10)
	assert.Equal(t, ErrPayloadTooLarge, status)
}

func TestRequestParserRejectsChunkedWithContentLength(t *testing.T) {
	req := newRequest()
	p := newRequestParser()
	p.reset(req)

	raw := []byte("POST /upload HTTP/1.1\r\nHost: example.com\r\nTransfer-Encoding: chunked\r\nContent-Length: 5\r\n\r\n")
	_, status := p.Feed(raw)
	require.Equal(t, HeadersComplete, status)

	status = p.DecideBody(1 << 20)
	assert.Equal(t, ErrBadRequest, status)
}

func TestRequestParserChunkedBody(t *testing.T) {
	req := newRequest()
	p := newRequestParser()
	p.reset(req)

	raw := []byte("POST /upload HTTP/1.1\r\nHost: example.com\r\nTransfer-Encoding: chunked\r\n\r\n")
	consumed, status := p.Feed(raw)
	require.Equal(t, HeadersComplete, status)

	status = p.DecideBody(1 << 20)
	require.Equal(t, Incomplete, status)

	body := []byte("4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n")
	n2, status2 := p.Feed(body)
	assert.Equal(t, Success, status2)
	assert.Equal(t, len(body), n2)
	assert.Equal(t, "Wikipedia", string(req.Body))
	_ = consumed
}

func TestRequestParserRejectsDotDotPath(t *testing.T) {
	req := newRequest()
	p := newRequestParser()
	p.reset(req)

	raw := []byte("GET /../etc/passwd HTTP/1.1\r\nHost: example.com\r\n\r\n")
	_, status := p.Feed(raw)
	assert.Equal(t, ErrBadRequest, status)
}

func TestRequestParserRejectsUnsupportedVersion(t *testing.T) {
	req := newRequest()
	p := newRequestParser()
	p.reset(req)

	raw := []byte("GET / HTTP/2.0\r\nHost: example.com\r\n\r\n")
	_, status := p.Feed(raw)
	assert.Equal(t, ErrVersionNotSupported, status)
}

func TestRequestParserIncompleteAcrossReads(t *testing.T) {
	req := newRequest()
	p := newRequestParser()
	p.reset(req)

	first := []byte("GET / HTTP/1.1\r\nHost: exam")
	consumed, status := p.Feed(first)
	assert.Equal(t, Incomplete, status)
	assert.Equal(t, len("GET / HTTP/1.1\r\n"), consumed)

	second := []byte("ple.com\r\n\r\n")
	rest := append(append([]byte{}, first[consumed:]...), second...)
	consumed2, status2 := p.Feed(rest)
	assert.Equal(t, Success, status2)
	assert.Equal(t, len(rest), consumed2)
}
