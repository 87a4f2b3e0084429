package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strings"

	"github.com/elnormous/contenttype"
)

var jsonMediaType = contenttype.NewMediaType("application/json")

// Request is one logical API call. It outlives individual HTTP attempts so
// middleware can resend it; Body is kept as bytes for that reason.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	id      string
	retried bool
}

// NewRequest builds a request for path relative to the client base URL.
func NewRequest(method, path string) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Header: make(http.Header),
	}
}

// NewJSONRequest builds a request whose body is v encoded as JSON.
func NewJSONRequest(method, path string, v any) (*Request, error) {
	req := NewRequest(method, path)
	if v == nil {
		return req, nil
	}
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("api: encode %s %s: %w", method, path, err)
	}
	req.Body = body
	req.Header.Set("Content-Type", jsonMediaType.String())
	return req, nil
}

// ID returns the request identifier sent as X-Request-ID. It is assigned on
// the first Do and kept across resends.
func (r *Request) ID() string { return r.id }

// Retried reports whether middleware already resent this request.
func (r *Request) Retried() bool { return r.retried }

// MarkRetried records that the request has used its one resend.
func (r *Request) MarkRetried() { r.retried = true }

// Attempt is 1 for the first send and 2 once retried.
func (r *Request) Attempt() int {
	if r.retried {
		return 2
	}
	return 1
}

// Is reports whether the request targets path. Leading and trailing slashes
// are ignored, matching how the client resolves paths.
func (r *Request) Is(path string) bool {
	return cleanPath(r.Path) == cleanPath(path)
}

func cleanPath(p string) string {
	return "/" + strings.Trim(p, "/")
}

// Clone returns a deep copy, including the retry flag.
func (r *Request) Clone() *Request {
	out := *r
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	out.Query = maps.Clone(r.Query)
	out.Body = bytes.Clone(r.Body)
	return &out
}

// SetBearer sets the Authorization header to a bearer credential.
func (r *Request) SetBearer(token string) {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Set("Authorization", "Bearer "+token)
}

// Response is a successful (2xx) API response with its body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals a JSON body into v. Non-JSON content types and bodies
// that fail to decode yield ErrMalformedResponse.
func (r *Response) Decode(v any) error {
	if !isJSON(r.Header.Get("Content-Type")) {
		return fmt.Errorf("%w: content-type %q", ErrMalformedResponse, r.Header.Get("Content-Type"))
	}
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func isJSON(ct string) bool {
	if ct == "" {
		return false
	}
	mt := contenttype.NewMediaType(ct)
	if mt.Matches(jsonMediaType) {
		return true
	}
	return mt.Type == "application" && strings.HasSuffix(mt.Subtype, "+json")
}
