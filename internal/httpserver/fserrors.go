package httpserver

import (
	"errors"
	"syscall"
)

// isENOSPC reports whether err is ultimately a "no space left on
// device" error, per spec.md §4.9/§7 (ENOSPC -> 507).
func isENOSPC(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}

// isEBUSY reports whether err is ultimately "device or resource busy"
// (spec.md §4.10/§7: EBUSY -> 409).
func isEBUSY(err error) bool {
	return errors.Is(err, syscall.EBUSY)
}
