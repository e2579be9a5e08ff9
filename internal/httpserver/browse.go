package httpserver

import (
	"fmt"
	"html"
	"os"
	"sort"
	"strings"
)

// renderAutoindex generates a directory listing, grounded on Caddy's
// caddyhttp/fileserver/browse.go shape (directories first, then
// lexicographic by name) but reduced to a pure function over already-
// read directory entries (SPEC_FULL.md §4.18); StaticHandler is the
// only caller.
func renderAutoindex(urlPath string, entries []os.DirEntry) []byte {
	sorted := make([]os.DirEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].IsDir() != sorted[j].IsDir() {
			return sorted[i].IsDir()
		}
		return sorted[i].Name() < sorted[j].Name()
	})

	var b strings.Builder
	fmt.Fprintf(&b, "<!DOCTYPE html><html><head><title>Index of %s</title></head><body>", html.EscapeString(urlPath))
	fmt.Fprintf(&b, "<h1>Index of %s</h1><ul>", html.EscapeString(urlPath))
	if urlPath != "/" {
		b.WriteString(`<li><a href="../">../</a></li>`)
	}
	for _, e := range sorted {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		href := html.EscapeString(name)
		var size string
		if info, err := e.Info(); err == nil && !e.IsDir() {
			size = fmt.Sprintf(" (%d bytes)", info.Size())
		}
		fmt.Fprintf(&b, `<li><a href="%s">%s</a>%s</li>`, href, html.EscapeString(name), size)
	}
	b.WriteString("</ul></body></html>")
	return []byte(b.String())
}
