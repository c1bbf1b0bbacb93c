package slimpay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftsoftwaregroup/swift-slimpay-client-go/oauth2client"
)

const approvalHTML = `<iframe src="https://checkout.slimpay.net/approve"></iframe>`

func newHAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	})
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		var order map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&order); err != nil || order["paymentScheme"] == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":205,"message":"Invalid order"}`))
			return
		}
		base := "http://" + r.Host
		w.Header().Set("Content-Type", "application/hal+json")
		fmt.Fprintf(w, `{
			"id": "ord-1",
			"reference": "ref-1",
			"state": "open.running",
			"paymentScheme": %q,
			"_links": {
				"self": {"href": "%s/orders/ord-1"},
				%q: {"href": "https://checkout.slimpay.net/approve/ord-1"},
				%q: {"href": "%s/orders/ord-1/extended-user-approval{?mode}", "templated": true}
			}
		}`, order["paymentScheme"], base, RelUserApproval, RelExtendedUserApproval, base)
	})
	mux.HandleFunc("/orders/ord-1/extended-user-approval", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mode") != string(ModeIframe) {
			http.Error(w, "bad mode", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/hal+json")
		fmt.Fprintf(w, `{"content":%q,"_links":{}}`, base64.StdEncoding.EncodeToString([]byte(approvalHTML)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestCheckout(t *testing.T, mode Mode) (*Checkout, *httptest.Server) {
	t.Helper()
	srv := newHAPIServer(t)
	api, err := oauth2client.NewAPIClient(oauth2client.Config{
		ClientID:     "democreditor01",
		ClientSecret: "demosecret01",
		BaseURL:      srv.URL,
	})
	require.NoError(t, err)
	return NewCheckout(api, mode), srv
}

func cardOrder() map[string]interface{} {
	return map[string]interface{}{
		"started":       true,
		"locale":        "it",
		"paymentScheme": "CARD",
		"creditor":      map[string]string{"reference": "democreditor"},
		"items":         []map[string]string{{"type": "cardAlias"}},
		"subscriber":    map[string]string{"reference": "subscriber01"},
	}
}

func TestCheckout_Redirect(t *testing.T) {
	checkout, _ := newTestCheckout(t, ModeRedirect)

	approval, err := checkout.Checkout(context.Background(), cardOrder())
	require.NoError(t, err)
	assert.Equal(t, ModeRedirect, approval.Mode)
	assert.Equal(t, "https://checkout.slimpay.net/approve/ord-1", approval.URL)
	assert.Equal(t, "CARD", approval.Order.PaymentScheme)
	assert.Equal(t, "ref-1", approval.Order.Reference)
	assert.True(t, IsValidResponse(approval.Order.Result))
}

func TestCheckout_Iframe(t *testing.T) {
	checkout, srv := newTestCheckout(t, ModeIframe)

	approval, err := checkout.Checkout(context.Background(), cardOrder())
	require.NoError(t, err)
	assert.Equal(t, ModeIframe, approval.Mode)
	assert.Equal(t, srv.URL+"/orders/ord-1/extended-user-approval?mode=iframeembedded", approval.URL)
	assert.Equal(t, approvalHTML, approval.HTML)
}

func TestCheckout_WrongData(t *testing.T) {
	checkout, _ := newTestCheckout(t, ModeRedirect)

	_, err := checkout.Checkout(context.Background(), []string{"wrongCheckoutData"})

	var clientErr *oauth2client.ClientError
	require.ErrorAs(t, err, &clientErr)
	info := Describe(err)
	assert.Equal(t, "client", info.Kind)
	assert.Equal(t, http.StatusBadRequest, info.HTTPCode)
	assert.Equal(t, 205, info.Code)
	assert.Equal(t, "Invalid order", info.Message)
}

func TestCheckout_GetResource(t *testing.T) {
	checkout, srv := newTestCheckout(t, ModeRedirect)

	order, err := checkout.CreateOrder(context.Background(), cardOrder())
	require.NoError(t, err)
	self, ok := order.Link("self")
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/orders/ord-1", self)

	result, err := checkout.GetResource(context.Background(), srv.URL+"/orders/ord-1/extended-user-approval?mode=iframeembedded")
	require.NoError(t, err)
	assert.True(t, IsValidResponse(result))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("iframe")
	require.NoError(t, err)
	assert.Equal(t, ModeIframe, m)

	m, err = ParseMode("redirect")
	require.NoError(t, err)
	assert.Equal(t, ModeRedirect, m)

	_, err = ParseMode("popup")
	require.Error(t, err)
}

func TestIsValidResponse_Nil(t *testing.T) {
	assert.False(t, IsValidResponse(nil))
}
