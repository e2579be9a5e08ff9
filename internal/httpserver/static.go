package httpserver

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/phspeters/webserv-sub000/internal/config"
)

// staticFileThreshold is the size under which StaticHandler loads a
// file fully into Response.Body instead of streaming it via the
// Connection's file_fd (SPEC_FULL.md/spec.md §4.8 leaves this
// implementation-defined).
const staticFileThreshold = 256 * 1024

// StaticResult is what StaticHandler decided to do with a request; it
// is translated into Connection state by the caller (server.go),
// which is the only place allowed to set file_fd/file_offset per
// spec.md §9 ("Connection owns its FDs").
type StaticResult struct {
	Status   int
	Redirect string // non-empty => Location header, Status is 301
	FilePath string // non-empty => caller should open this file and stream it
	Inline   []byte // set when the body was small enough to load directly
}

// serveStatic resolves and serves a static file or directory listing
// for loc/reqPath, grounded on caddyhttp/staticfiles/fileserver.go's
// serveFile (directory-redirect-with-trailing-slash, index lookup,
// MIME lookup) adapted to this server's explicit open-or-stream
// decision rather than http.FileSystem.
func serveStatic(loc *config.Location, reqPath string, resp *Response) StaticResult {
	rel := strings.TrimPrefix(reqPath, loc.Path)
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	target := filepath.Join(loc.Root, filepath.FromSlash(rel))

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return StaticResult{Status: 404}
		}
		if os.IsPermission(err) {
			return StaticResult{Status: 403}
		}
		return StaticResult{Status: 500}
	}

	if info.IsDir() {
		if !strings.HasSuffix(reqPath, "/") {
			return StaticResult{Status: 301, Redirect: reqPath + "/"}
		}
		if loc.Index != "" {
			indexPath := filepath.Join(target, loc.Index)
			if idxInfo, err := os.Stat(indexPath); err == nil && idxInfo.Mode().IsRegular() {
				return openOrLoad(indexPath, idxInfo, resp)
			}
		}
		if loc.Autoindex {
			entries, err := os.ReadDir(target)
			if err != nil {
				return StaticResult{Status: 500}
			}
			body := renderAutoindex(reqPath, entries)
			resp.ContentType = "text/html; charset=utf-8"
			return StaticResult{Status: 200, Inline: body}
		}
		return StaticResult{Status: 404}
	}

	if !info.Mode().IsRegular() {
		return StaticResult{Status: 403}
	}
	return openOrLoad(target, info, resp)
}

func openOrLoad(path string, info os.FileInfo, resp *Response) StaticResult {
	resp.ContentType = mimeTypeFor(path)
	if info.Size() > staticFileThreshold {
		return StaticResult{Status: 200, FilePath: path}
	}
	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return StaticResult{Status: 403}
		}
		return StaticResult{Status: 500}
	}
	return StaticResult{Status: 200, Inline: body}
}

// resolveFSPath mirrors StaticHandler's path resolution for
// DeleteHandler (spec.md §4.10) and the CGI script lookup, without the
// directory/index logic that only applies to GET.
func resolveFSPath(loc *config.Location, reqPath string) string {
	rel := strings.TrimPrefix(reqPath, loc.Path)
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return filepath.Join(loc.Root, filepath.FromSlash(rel))
}
