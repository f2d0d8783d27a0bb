// Package webreg is a stateful client for the WebReg course registration
// portal. A Wrapper owns one set of session cookies; per-request overrides
// let a single wrapper serve requests on behalf of many users.
//
// Parsed operations decode the portal's responses into typed structures;
// raw operations return the body unmodified.
package webreg

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultBaseURL is the WebReg adapter service all requests go to.
const DefaultBaseURL = "https://act.ucsd.edu/webreg2/svc/wradapter/secure"

// Wrapper is a WebReg client bound to one session.
//
// The session cookies are held as an immutable snapshot: SetCookies
// publishes a new snapshot and requests started afterwards observe it, while
// in-flight requests keep the snapshot they started with.
type Wrapper struct {
	httpClient *http.Client
	baseURL    string
	cookies    atomic.Value // string

	// closeAfterRequest forces Connection: close on every request. The
	// cookie-forwarding wrapper uses this so user sessions never share
	// pooled connections with the polling identity.
	closeAfterRequest bool

	// codes deduplicates concurrent subject/department code lookups,
	// which are term-independent and frequently requested together.
	codes singleflight.Group
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithCookies sets the initial session cookies.
func WithCookies(cookies string) Option {
	return func(w *Wrapper) {
		w.cookies.Store(cookies)
	}
}

// WithBaseURL overrides the portal base URL. Intended for tests.
func WithBaseURL(base string) Option {
	return func(w *Wrapper) {
		w.baseURL = strings.TrimSuffix(base, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(w *Wrapper) {
		w.httpClient = client
	}
}

// CloseAfterRequest makes the wrapper close the connection after every
// request instead of pooling it.
func CloseAfterRequest() Option {
	return func(w *Wrapper) {
		w.closeAfterRequest = true
	}
}

// New creates a Wrapper.
func New(opts ...Option) *Wrapper {
	w := &Wrapper{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: DefaultBaseURL,
	}
	w.cookies.Store("")
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetCookies atomically replaces the wrapper's session cookies.
func (w *Wrapper) SetCookies(cookies string) {
	w.cookies.Store(cookies)
}

// Cookies returns the current cookie snapshot.
func (w *Wrapper) Cookies() string {
	return w.cookies.Load().(string)
}

// Req starts a request builder scoped to the given term.
func (w *Wrapper) Req(term string) *TermRequest {
	return &TermRequest{wrapper: w, term: term}
}

// RegisterAllTerms associates the current session cookies with every term
// WebReg knows about. WebReg requires this once per session before
// term-scoped requests succeed.
func (w *Wrapper) RegisterAllTerms(ctx context.Context) error {
	terms, err := w.GetTerms(ctx)
	if err != nil {
		return err
	}
	for _, t := range terms {
		q := url.Values{"termcode": {t.TermCode}}
		body, err := w.do(ctx, http.MethodPost, "add-update-term", q, "")
		if err != nil {
			return err
		}
		if err := checkAck(body); err != nil {
			return err
		}
	}
	return nil
}

// GetTerms lists every term known to WebReg for the current session.
func (w *Wrapper) GetTerms(ctx context.Context) ([]TermEntry, error) {
	body, err := w.do(ctx, http.MethodGet, "get-term", nil, "")
	if err != nil {
		return nil, err
	}

	var raw []struct {
		TermCode string `json:"TERM_CODE"`
		TermDesc string `json:"TERM_DESC"`
	}
	if err := decodeJSON(body, &raw); err != nil {
		return nil, err
	}

	terms := make([]TermEntry, 0, len(raw))
	for _, r := range raw {
		terms = append(terms, TermEntry{
			TermCode: strings.TrimSpace(r.TermCode),
			TermName: strings.TrimSpace(r.TermDesc),
		})
	}
	return terms, nil
}

// do performs one portal request and returns the response body. The
// cookieOverride, when non-empty, replaces the wrapper's cookie snapshot
// for this single request.
func (w *Wrapper) do(ctx context.Context, method, endpoint string, query url.Values, cookieOverride string) ([]byte, error) {
	u, err := url.Parse(w.baseURL + "/" + endpoint)
	if err != nil {
		return nil, &Error{Kind: KindURLParse, Msg: endpoint, Err: err}
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, &Error{Kind: KindURLParse, Msg: endpoint, Err: err}
	}

	cookies := cookieOverride
	if cookies == "" {
		cookies = w.Cookies()
	}
	req.Header.Set("Cookie", cookies)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if w.closeAfterRequest {
		req.Close = true
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, badStatusError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}

// decodeJSON decodes a portal body, translating failure into the error
// taxonomy. An HTML body means WebReg bounced the request to its login
// page, which signals an invalid session rather than a decoding bug.
func decodeJSON(body []byte, out any) error {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "<") {
		return &Error{Kind: KindSessionInvalid, Msg: "portal served a login page"}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return deserializeError(err)
	}
	return nil
}

// checkAck interprets the body of a mutating request. WebReg acknowledges
// these with a JSON-encoded string: "SUCCESS" (or empty) on success, an
// error message otherwise.
func checkAck(body []byte) error {
	var msg string
	if err := decodeJSON(body, &msg); err != nil {
		return err
	}
	msg = strings.TrimSpace(msg)
	if msg == "" || strings.EqualFold(msg, "SUCCESS") {
		return nil
	}
	if strings.Contains(strings.ToLower(msg), "not authorized") ||
		strings.Contains(strings.ToLower(msg), "session") && strings.Contains(strings.ToLower(msg), "expired") {
		return &Error{Kind: KindSessionInvalid, Msg: msg}
	}
	return portalError(msg)
}

// ackToBool converts an acknowledgement check into the bool the API
// handlers return.
func ackToBool(body []byte, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	if err := checkAck(body); err != nil {
		return false, err
	}
	return true, nil
}
