package oauth2client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBody_Kinds(t *testing.T) {
	tests := []struct {
		contentType string
		body        string
		want        BodyKind
	}{
		{"application/hal+json; charset=utf-8", `{"a":1}`, BodyJSON},
		{"application/json", `[1,2]`, BodyJSON},
		{"text/xml", `<a><b>1</b></a>`, BodyXML},
		{"application/pdf", `%PDF`, BodyRaw},
		{"", `plain`, BodyRaw},
		{"application/json", ``, BodyEmpty},
		{"application/json", "  \n", BodyEmpty},
	}

	for _, tt := range tests {
		b, err := parseBody(tt.contentType, []byte(tt.body))
		require.NoError(t, err, tt.contentType)
		assert.Equal(t, tt.want, b.Kind(), "%s %q", tt.contentType, tt.body)
		assert.Equal(t, tt.body, string(b.Raw()))
	}
}

func TestParseBody_InvalidJSON(t *testing.T) {
	_, err := parseBody("application/json", []byte(`{"broken"`))
	require.Error(t, err)
}

func TestBody_RawHasNoDocument(t *testing.T) {
	b, err := parseBody("application/octet-stream", []byte{0x01, 0x02})
	require.NoError(t, err)

	_, ok := b.JSON()
	assert.False(t, ok)
	assert.False(t, b.Get("anything").Exists())
	assert.Error(t, b.Decode(&struct{}{}))
	assert.Empty(t, b.Links())
}

func TestBody_DecodeAndLinks(t *testing.T) {
	b, err := parseBody("application/hal+json", []byte(`{
		"reference": "ord-1",
		"state": "open.running",
		"_links": {
			"self": {"href": "https://api.example.com/orders/ord-1"},
			"https://api.slimpay.net/alps#get-creditor": {"href": "https://api.example.com/creditors/c1"},
			"curies": [{"name": "alps"}]
		}
	}`))
	require.NoError(t, err)

	var order struct {
		Reference string `json:"reference"`
		State     string `json:"state"`
	}
	require.NoError(t, b.Decode(&order))
	assert.Equal(t, "ord-1", order.Reference)
	assert.Equal(t, "open.running", order.State)

	links := b.Links()
	assert.Len(t, links, 2)
	href, ok := b.Link("https://api.slimpay.net/alps#get-creditor")
	assert.True(t, ok)
	assert.Equal(t, "https://api.example.com/creditors/c1", href)

	_, ok = b.Link("missing")
	assert.False(t, ok)
}

func TestXMLToJSON(t *testing.T) {
	doc, err := xmlToJSON([]byte(`<?xml version="1.0"?>
<order id="42" state="open">
	<reference>ref-42</reference>
	<item><type>signMandate</type></item>
	<item><type>cardAlias</type></item>
	<amount currency="EUR">10.50</amount>
	<empty/>
</order>`))
	require.NoError(t, err)

	b := Body{kind: BodyXML, doc: doc}
	assert.Equal(t, "42", b.Get("_attributes.id").String())
	assert.Equal(t, "ref-42", b.Get("reference").String())
	assert.Equal(t, int64(2), b.Get("item.#").Int())
	assert.Equal(t, "cardAlias", b.Get("item.1.type").String())
	assert.Equal(t, "EUR", b.Get("amount._attributes.currency").String())
	assert.Equal(t, "10.50", b.Get("amount._text").String())
	assert.Equal(t, "", b.Get("empty").String())
}

func TestXMLToJSON_TextOnlyRoot(t *testing.T) {
	doc, err := xmlToJSON([]byte(`<status>ok</status>`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(doc))
}

func TestXMLToJSON_Malformed(t *testing.T) {
	_, err := xmlToJSON([]byte(`<order><reference>`))
	require.Error(t, err)

	_, err = xmlToJSON([]byte(`just text`))
	require.Error(t, err)
}
