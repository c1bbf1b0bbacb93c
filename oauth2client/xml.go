package oauth2client

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

type xmlNode struct {
	name     string
	attrs    []xml.Attr
	children []*xmlNode
	text     strings.Builder
}

// xmlToJSON converts an XML document into the JSON object shape used for JSON bodies.
// Child elements become keys, repeated children become arrays, attributes go under
// "_attributes" and text-only elements become strings. The root element itself is
// dropped, so <order><id>1</id></order> becomes {"id":"1"}.
func xmlToJSON(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var root *xmlNode
	var stack []*xmlNode

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: t.Name.Local, attrs: t.Attr}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("no root element")
	}

	v := root.value()
	if s, ok := v.(string); ok {
		// A root with only text still has to yield an object.
		v = map[string]interface{}{root.name: s}
	}
	return json.Marshal(v)
}

func (n *xmlNode) value() interface{} {
	text := strings.TrimSpace(n.text.String())
	if len(n.children) == 0 && len(n.attrs) == 0 {
		return text
	}

	obj := make(map[string]interface{})
	if len(n.attrs) > 0 {
		attrs := make(map[string]string, len(n.attrs))
		for _, a := range n.attrs {
			attrs[a.Name.Local] = a.Value
		}
		obj["_attributes"] = attrs
	}
	for _, c := range n.children {
		v := c.value()
		switch existing := obj[c.name].(type) {
		case nil:
			obj[c.name] = v
		case []interface{}:
			obj[c.name] = append(existing, v)
		default:
			obj[c.name] = []interface{}{existing, v}
		}
	}
	if len(n.children) == 0 && text != "" {
		obj["_text"] = text
	}
	return obj
}
