package stub

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Mapping is a WireMock stub mapping.
type Mapping struct {
	ID       string          `json:"id,omitempty"`
	Request  MappingRequest  `json:"request"`
	Response MappingResponse `json:"response"`
}

// MappingRequest is the request matcher of a mapping.
type MappingRequest struct {
	Method  string                       `json:"method"`
	URL     string                       `json:"url,omitempty"`
	URLPath string                       `json:"urlPath,omitempty"`
	Headers map[string]map[string]string `json:"headers,omitempty"`
}

// MappingResponse is the canned response of a mapping.
type MappingResponse struct {
	Status                 int               `json:"status"`
	Body                   string            `json:"body,omitempty"`
	Headers                map[string]string `json:"headers,omitempty"`
	FixedDelayMilliseconds int               `json:"fixedDelayMilliseconds,omitempty"`
}

// MappingBuilder assembles a Mapping. The zero value answers GET with 200 and
// an empty text/plain body; WireMock always needs a content type.
type MappingBuilder struct {
	method      string
	url         string
	urlPath     string
	status      int
	body        string
	contentType string
	headers     map[string]string
	matchHeader map[string]string
	delayMillis int
	err         error
}

// NewMapping starts a mapping for the exact URL (path and query).
func NewMapping(url string) *MappingBuilder {
	return &MappingBuilder{url: url}
}

// ForURLPath matches on the path only, ignoring query parameters.
func (b *MappingBuilder) ForURLPath(path string) *MappingBuilder {
	b.url = ""
	b.urlPath = path
	return b
}

// WithMethod sets the HTTP method to match.
func (b *MappingBuilder) WithMethod(method string) *MappingBuilder {
	b.method = method
	return b
}

// WithStatus sets the response status.
func (b *MappingBuilder) WithStatus(status int) *MappingBuilder {
	b.status = status
	return b
}

// WithBody sets a text/plain response body.
func (b *MappingBuilder) WithBody(body string) *MappingBuilder {
	b.body = body
	b.contentType = "text/plain"
	return b
}

// WithJSONBody encodes v as the response body.
func (b *MappingBuilder) WithJSONBody(v any) *MappingBuilder {
	raw, err := json.Marshal(v)
	if err != nil {
		b.err = fmt.Errorf("failed to encode mapping body: %w", err)
		return b
	}
	b.body = string(raw)
	b.contentType = "application/json"
	return b
}

// WithContentType overrides the response content type.
func (b *MappingBuilder) WithContentType(contentType string) *MappingBuilder {
	b.contentType = contentType
	return b
}

// WithHeader adds a response header.
func (b *MappingBuilder) WithHeader(key, value string) *MappingBuilder {
	if b.headers == nil {
		b.headers = make(map[string]string)
	}
	b.headers[key] = value
	return b
}

// MatchingHeader only matches requests carrying the header with this exact value.
func (b *MappingBuilder) MatchingHeader(key, value string) *MappingBuilder {
	if b.matchHeader == nil {
		b.matchHeader = make(map[string]string)
	}
	b.matchHeader[key] = value
	return b
}

// WithFixedDelay delays the response.
func (b *MappingBuilder) WithFixedDelay(millis int) *MappingBuilder {
	b.delayMillis = millis
	return b
}

// Build returns the mapping.
func (b *MappingBuilder) Build() (Mapping, error) {
	if b.err != nil {
		return Mapping{}, b.err
	}
	if b.url == "" && b.urlPath == "" {
		return Mapping{}, fmt.Errorf("mapping needs a URL")
	}

	m := Mapping{
		Request: MappingRequest{
			Method:  b.method,
			URL:     b.url,
			URLPath: b.urlPath,
		},
		Response: MappingResponse{
			Status:                 b.status,
			Body:                   b.body,
			Headers:                map[string]string{"Content-Type": b.contentType},
			FixedDelayMilliseconds: b.delayMillis,
		},
	}
	if m.Request.Method == "" {
		m.Request.Method = http.MethodGet
	}
	if m.Response.Status == 0 {
		m.Response.Status = http.StatusOK
	}
	if b.contentType == "" {
		m.Response.Headers["Content-Type"] = "text/plain"
	}
	for k, v := range b.headers {
		m.Response.Headers[k] = v
	}
	if len(b.matchHeader) > 0 {
		m.Request.Headers = make(map[string]map[string]string, len(b.matchHeader))
		for k, v := range b.matchHeader {
			m.Request.Headers[k] = map[string]string{"equalTo": v}
		}
	}
	return m, nil
}

// LoggedRequest is one entry of WireMock's request journal.
type LoggedRequest struct {
	ID      string `json:"id"`
	Request struct {
		URL         string `json:"url"`
		AbsoluteURL string `json:"absoluteUrl"`
		Method      string `json:"method"`
		Body        string `json:"body"`
		LoggedDate  int64  `json:"loggedDate"`
	} `json:"request"`
	WasMatched  bool `json:"wasMatched"`
	StubMapping *struct {
		ID string `json:"id"`
	} `json:"stubMapping,omitempty"`
}

// MatchedBy reports whether the request was answered by the mapping with id.
func (r LoggedRequest) MatchedBy(id string) bool {
	return r.StubMapping != nil && r.StubMapping.ID == id
}

type requestJournal struct {
	Requests []LoggedRequest `json:"requests"`
}
