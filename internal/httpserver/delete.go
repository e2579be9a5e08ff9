package httpserver

import (
	"errors"
	"os"
	"strings"

	"github.com/phspeters/webserv-sub000/internal/config"
)

// DeleteResult is the outcome of DeleteHandler (spec.md §4.10).
type DeleteResult struct {
	Status int
}

// handleDelete resolves reqPath the same way StaticHandler does and
// unlinks the target, grounded on fileserver.go's fs-error-to-status
// mapping idiom.
func handleDelete(loc *config.Location, reqPath string) DeleteResult {
	if strings.Contains(reqPath, "..") {
		return DeleteResult{Status: 403}
	}
	target := resolveFSPath(loc, reqPath)

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return DeleteResult{Status: 404}
		}
		if os.IsPermission(err) {
			return DeleteResult{Status: 403}
		}
		return DeleteResult{Status: 500}
	}
	if info.IsDir() || !info.Mode().IsRegular() {
		return DeleteResult{Status: 403}
	}

	if err := os.Remove(target); err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return DeleteResult{Status: 404}
		case errors.Is(err, os.ErrPermission):
			return DeleteResult{Status: 403}
		case isEBUSY(err):
			return DeleteResult{Status: 409}
		default:
			return DeleteResult{Status: 500}
		}
	}
	return DeleteResult{Status: 204}
}
