package httpserver

import "github.com/phspeters/webserv-sub000/internal/config"

// HandlerKind is the result of HandlerDispatch (spec.md §4.7):
// handlers are stateless singletons parameterized by configuration;
// the caller (Connection, driven by server.go) resumes progress by
// inspecting tagged Connection state, not by virtual dispatch.
type HandlerKind int

const (
	HandlerNone HandlerKind = iota
	HandlerStatic
	HandlerUpload
	HandlerDelete
	HandlerCGI
)

func (k HandlerKind) String() string {
	switch k {
	case HandlerStatic:
		return "static"
	case HandlerUpload:
		return "upload"
	case HandlerDelete:
		return "delete"
	case HandlerCGI:
		return "cgi"
	default:
		return "none"
	}
}

// DispatchResult carries the decision plus, for the 405 case, the
// Allow header value.
type DispatchResult struct {
	Kind       HandlerKind
	Status     int // non-zero means "respond immediately with this status"
	AllowHeader string
}

// Dispatch selects a handler for method at loc, per spec.md §4.7.
func Dispatch(loc *config.Location, method config.Method) DispatchResult {
	if !loc.AllowsMethod(method) {
		return DispatchResult{Status: 405, AllowHeader: loc.AllowHeader()}
	}
	if loc.CGIEnabled {
		return DispatchResult{Kind: HandlerCGI}
	}
	switch method {
	case config.MethodPost:
		return DispatchResult{Kind: HandlerUpload}
	case config.MethodDelete:
		return DispatchResult{Kind: HandlerDelete}
	default:
		return DispatchResult{Kind: HandlerStatic}
	}
}
