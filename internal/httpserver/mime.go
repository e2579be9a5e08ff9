package httpserver

import (
	"path/filepath"
	"strings"
)

// mimeTable is the static extension -> content-type table consulted
// by StaticHandler (SPEC_FULL.md §4.17). Not configurable in this
// core; spec.md names no directive for it.
var mimeTable = map[string]string{
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".pdf":  "application/pdf",
	".woff": "font/woff",
	".woff2": "font/woff2",
	".mp4":  "video/mp4",
}

const defaultMIMEType = "application/octet-stream"

func mimeTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := mimeTable[ext]; ok {
		return t
	}
	return defaultMIMEType
}
