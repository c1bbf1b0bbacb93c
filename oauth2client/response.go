package oauth2client

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// BodyKind tells how a response body was interpreted.
type BodyKind int

const (
	BodyEmpty BodyKind = iota
	BodyJSON
	BodyXML
	BodyRaw
)

func (k BodyKind) String() string {
	switch k {
	case BodyJSON:
		return "json"
	case BodyXML:
		return "xml"
	case BodyRaw:
		return "raw"
	}
	return "empty"
}

// Body is a parsed response body. JSON and XML bodies share one JSON document
// representation; anything else is kept as raw bytes.
type Body struct {
	kind        BodyKind
	contentType string
	raw         []byte
	doc         []byte
}

// Result is the successful outcome of a Request.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       Body
}

// parseBody picks the representation from the Content-Type, the way the API negotiates it.
func parseBody(contentType string, raw []byte) (Body, error) {
	b := Body{contentType: contentType, raw: raw}
	if len(strings.TrimSpace(string(raw))) == 0 {
		b.kind = BodyEmpty
		return b, nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(contentType)
	}

	switch {
	case strings.Contains(mediaType, "json"):
		if !gjson.ValidBytes(raw) {
			return Body{}, fmt.Errorf("response declared %s but is not valid JSON", mediaType)
		}
		b.kind = BodyJSON
		b.doc = raw
	case strings.Contains(mediaType, "xml"):
		doc, err := xmlToJSON(raw)
		if err != nil {
			return Body{}, fmt.Errorf("failed to convert XML response: %w", err)
		}
		b.kind = BodyXML
		b.doc = doc
	default:
		b.kind = BodyRaw
	}
	return b, nil
}

// Kind reports how the body was parsed.
func (b Body) Kind() BodyKind { return b.kind }

// ContentType is the Content-Type header the body arrived with.
func (b Body) ContentType() string { return b.contentType }

// Raw returns the body bytes as received (after content decoding).
func (b Body) Raw() []byte { return b.raw }

// JSON returns the structured document. For XML bodies this is the converted form.
func (b Body) JSON() ([]byte, bool) {
	if b.kind != BodyJSON && b.kind != BodyXML {
		return nil, false
	}
	return b.doc, true
}

// Get looks up a gjson path in the structured document. Raw and empty bodies yield a
// non-existent result.
func (b Body) Get(path string) gjson.Result {
	if b.doc == nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(b.doc, path)
}

// Decode unmarshals the structured document into v.
func (b Body) Decode(v interface{}) error {
	if b.doc == nil {
		return fmt.Errorf("cannot decode %s body", b.kind)
	}
	return json.Unmarshal(b.doc, v)
}

// Links returns the HAL _links relations mapped to their href.
func (b Body) Links() map[string]string {
	links := make(map[string]string)
	b.Get("_links").ForEach(func(rel, link gjson.Result) bool {
		if href := link.Get("href"); href.Exists() {
			links[rel.String()] = href.String()
		}
		return true
	})
	return links
}

// Link returns the href of one HAL relation. Relation names are usually URLs
// (https://api.slimpay.net/alps#get-orders), so they are matched literally.
func (b Body) Link(rel string) (string, bool) {
	href, ok := b.Links()[rel]
	return href, ok
}
