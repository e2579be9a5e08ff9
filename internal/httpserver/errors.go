package httpserver

import (
	"fmt"
	"os"

	"github.com/phspeters/webserv-sub000/internal/config"
)

// buildErrorResponse fills resp with an error page for code, grounded
// on Caddy's DefaultErrorFunc/WriteTextResponse (server.go) but
// rendering HTML, per SPEC_FULL.md §4.16: if the virtual host
// configures a path for this status and it is readable, serve it
// verbatim; otherwise render a default page as a pure function of
// (code, reason).
func buildErrorResponse(resp *Response, vh *config.VirtualHost, version string, code int) {
	resp.reset()
	resp.Version = version
	resp.setStatus(code)

	if vh != nil {
		if p, ok := vh.ErrorPages[code]; ok {
			if body, err := os.ReadFile(p); err == nil {
				resp.Body = body
				resp.ContentType = mimeTypeFor(p)
				return
			}
		}
	}

	resp.Body = []byte(defaultErrorPage(code, resp.StatusMessage))
	resp.ContentType = "text/html; charset=utf-8"
}

func defaultErrorPage(code int, reason string) string {
	return fmt.Sprintf(
		"<!DOCTYPE html><html><head><title>%d %s</title></head>"+
			"<body><h1>%d %s</h1></body></html>",
		code, reason, code, reason)
}
