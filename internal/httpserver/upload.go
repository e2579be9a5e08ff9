package httpserver

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/phspeters/webserv-sub000/internal/config"
)

// UploadResult is the outcome of UploadHandler, translated by the
// caller into a Response (spec.md §4.9).
type UploadResult struct {
	Status int
	Body   []byte
}

var errMalformedMultipart = errors.New("malformed multipart framing")

// handleUpload parses a multipart/form-data body and writes file
// parts into <location root>/uploads/, grounded on the error-mapping
// idiom of caddyhttp/staticfiles/fileserver.go (os.IsNotExist /
// os.IsPermission -> status code) since the teacher pack has no
// multipart-upload middleware of its own to adapt directly.
func handleUpload(loc *config.Location, req *Request) UploadResult {
	cl, hasCL := req.Header("content-length")
	if !hasCL || cl == "" {
		return UploadResult{Status: 400}
	}
	ct, _ := req.Header("content-type")
	if !strings.HasPrefix(strings.ToLower(ct), "multipart/form-data") {
		return UploadResult{Status: 415}
	}
	boundary, ok := extractBoundary(ct)
	if !ok {
		return UploadResult{Status: 400}
	}

	uploadDir := filepath.Join(loc.Root, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return UploadResult{Status: 500}
	}

	parts, err := splitMultipart(req.Body, boundary)
	if err != nil {
		return UploadResult{Status: 400}
	}

	var saved int
	for _, part := range parts {
		filename, isFile := part.filename()
		if !isFile {
			continue
		}
		name := sanitizeFilename(filename)
		dest := filepath.Join(uploadDir, name)
		if err := os.WriteFile(dest, part.body, 0o644); err != nil {
			switch {
			case errors.Is(err, os.ErrPermission):
				return UploadResult{Status: 403}
			case isENOSPC(err):
				return UploadResult{Status: 507}
			default:
				os.Remove(dest)
				return UploadResult{Status: 500}
			}
		}
		saved++
	}

	return UploadResult{
		Status: 201,
		Body:   []byte("<html><body><p>Upload complete.</p></body></html>"),
	}
}

func extractBoundary(contentType string) (string, bool) {
	idx := strings.Index(strings.ToLower(contentType), "boundary=")
	if idx < 0 {
		return "", false
	}
	v := contentType[idx+len("boundary="):]
	if semi := strings.IndexByte(v, ';'); semi >= 0 {
		v = v[:semi]
	}
	v = strings.TrimSpace(v)
	v = strings.Trim(v, `"`)
	if v == "" {
		return "", false
	}
	return v, true
}

type multipartPart struct {
	headers map[string]string
	body    []byte
}

func (p multipartPart) filename() (string, bool) {
	cd, ok := p.headers["content-disposition"]
	if !ok {
		return "", false
	}
	idx := strings.Index(cd, `filename="`)
	if idx < 0 {
		return "", false
	}
	rest := cd[idx+len(`filename="`):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	name := rest[:end]
	if name == "" {
		return "", false
	}
	return name, true
}

// splitMultipart walks the body between "--boundary" delimiters,
// per spec.md §4.9: each part's headers up to a blank line, then its
// content up to (but not including) the trailing CRLF before the next
// boundary.
func splitMultipart(body []byte, boundary string) ([]multipartPart, error) {
	delim := []byte("--" + boundary)
	segments := bytes.Split(body, delim)
	if len(segments) < 3 {
		return nil, errMalformedMultipart
	}
	// segments[0] is preamble; the last segment is "--\r\n" (terminal).
	var parts []multipartPart
	for _, seg := range segments[1 : len(segments)-1] {
		seg = bytes.TrimPrefix(seg, []byte("\r\n"))
		headerEnd := bytes.Index(seg, []byte("\r\n\r\n"))
		if headerEnd < 0 {
			return nil, errMalformedMultipart
		}
		headerBlock := seg[:headerEnd]
		content := seg[headerEnd+4:]
		content = bytes.TrimSuffix(content, []byte("\r\n"))

		headers := make(map[string]string)
		for _, line := range bytes.Split(headerBlock, []byte("\r\n")) {
			if len(line) == 0 {
				continue
			}
			colon := bytes.IndexByte(line, ':')
			if colon < 0 {
				return nil, errMalformedMultipart
			}
			name := strings.ToLower(strings.TrimSpace(string(line[:colon])))
			value := strings.TrimSpace(string(line[colon+1:]))
			headers[name] = value
		}
		parts = append(parts, multipartPart{headers: headers, body: content})
	}
	return parts, nil
}

// sanitizeFilename strips any path components and replaces characters
// outside [A-Za-z0-9._-], per spec.md §4.9.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || out == "." || out == ".." {
		out = "upload_file"
	}
	if len(out) > 255 {
		out = out[:255]
	}
	return out
}
