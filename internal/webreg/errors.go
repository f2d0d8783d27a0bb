package webreg

import "fmt"

// Kind classifies wrapper errors so callers can map them to an HTTP
// response without string matching.
type Kind int

const (
	// KindTransport indicates the outbound HTTP request itself failed.
	KindTransport Kind = iota
	// KindURLParse indicates an internal URL could not be built.
	KindURLParse
	// KindInput indicates an invalid argument was passed to a portal call.
	KindInput
	// KindDeserialize indicates the portal returned a body that could not
	// be decoded as JSON. This usually means the session is no longer
	// valid and WebReg served a login page instead.
	KindDeserialize
	// KindBadStatus indicates the portal returned a non-2xx status code.
	KindBadStatus
	// KindPortal indicates WebReg returned an error string for the request.
	KindPortal
	// KindSectionIDNotFound indicates a section lookup missed.
	KindSectionIDNotFound
	// KindSessionInvalid indicates WebReg signaled expired authentication.
	KindSessionInvalid
	// KindBadTime indicates a portal-supplied timestamp could not be parsed.
	KindBadTime
)

// NotFoundContext says where a section id lookup missed.
type NotFoundContext int

const (
	// NotFoundInSchedule means the section was absent from the user's schedule.
	NotFoundInSchedule NotFoundContext = iota
	// NotFoundInCatalog means the section is not offered in the term.
	NotFoundInCatalog
)

// Error is the error type returned by all wrapper operations.
type Error struct {
	Kind Kind
	// Status holds the portal's status code when Kind is KindBadStatus.
	Status int
	// NotFoundIn is set when Kind is KindSectionIDNotFound.
	NotFoundIn NotFoundContext
	// Msg carries detail about the failure (portal error text, bad input
	// value, section id, ...).
	Msg string
	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("webreg: %s: %v", e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("webreg: %v", e.Err)
	default:
		return fmt.Sprintf("webreg: %s", e.Msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func transportError(err error) *Error {
	return &Error{Kind: KindTransport, Msg: "request failed", Err: err}
}

func deserializeError(err error) *Error {
	return &Error{Kind: KindDeserialize, Msg: "bad response body", Err: err}
}

func inputError(input, value string) *Error {
	return &Error{Kind: KindInput, Msg: fmt.Sprintf("input=%s, bad arg value=%s", input, value)}
}

func portalError(msg string) *Error {
	return &Error{Kind: KindPortal, Msg: msg}
}

func badStatusError(status int, body string) *Error {
	return &Error{Kind: KindBadStatus, Status: status, Msg: body}
}

func sectionNotFound(sectionID string, where NotFoundContext) *Error {
	return &Error{Kind: KindSectionIDNotFound, NotFoundIn: where, Msg: sectionID}
}
