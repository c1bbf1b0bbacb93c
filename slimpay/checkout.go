// Package slimpay builds the checkout flow of the SlimPay HAPI API on top of
// oauth2client: creating orders, locating the approval page for the chosen presentation
// mode, and reading payment notifications.
package slimpay

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/yosida95/uritemplate/v3"

	"github.com/swiftsoftwaregroup/swift-slimpay-client-go/oauth2client"
)

// RelPrefix namespaces the HAPI link relations.
const RelPrefix = "https://api.slimpay.net/alps#"

// Link relations used by the checkout flow.
const (
	RelUserApproval         = RelPrefix + "user-approval"
	RelExtendedUserApproval = RelPrefix + "extended-user-approval"
	RelGetOrders            = RelPrefix + "get-orders"
)

// Mode selects how the approval page is presented to the subscriber.
type Mode string

const (
	// ModeIframe embeds the approval page in the merchant's own page.
	ModeIframe Mode = "iframeembedded"
	// ModeRedirect sends the subscriber to the hosted approval page.
	ModeRedirect Mode = "redirect"
)

// ParseMode accepts the configuration spellings "iframe" and "redirect".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "iframe", string(ModeIframe):
		return ModeIframe, nil
	case "redirect", "":
		return ModeRedirect, nil
	}
	return "", fmt.Errorf("unknown checkout mode %q", s)
}

// Requester is the authenticated call the facade needs. *oauth2client.APIClient
// satisfies it.
type Requester interface {
	Request(ctx context.Context, method oauth2client.HttpMethod, endpoint string, params *oauth2client.Params) (*oauth2client.Result, error)
	APIVersion() string
}

// Checkout creates orders and resolves their approval page.
type Checkout struct {
	api  Requester
	mode Mode
}

// NewCheckout creates a Checkout presenting approvals in mode.
//
// Example:
//
//	api, err := oauth2client.NewAPIClient(cfg)
//	checkout := slimpay.NewCheckout(api, slimpay.ModeRedirect)
func NewCheckout(api Requester, mode Mode) *Checkout {
	return &Checkout{api: api, mode: mode}
}

// Order is a created order resource.
type Order struct {
	ID            string `json:"id"`
	Reference     string `json:"reference"`
	State         string `json:"state"`
	PaymentScheme string `json:"paymentScheme"`

	Result *oauth2client.Result `json:"-"`
}

// Link returns the href of one of the order's HAL relations.
func (o *Order) Link(rel string) (string, bool) {
	return o.Result.Body.Link(rel)
}

// Approval is where the subscriber approves an order: a URL in redirect mode, an HTML
// fragment in iframe mode.
type Approval struct {
	Mode  Mode
	URL   string
	HTML  string
	Order *Order
}

// CreateOrder posts order (any JSON-serializable value) to /orders.
func (c *Checkout) CreateOrder(ctx context.Context, order interface{}) (*Order, error) {
	result, err := c.api.Request(ctx, oauth2client.HttpPost, "/orders", &oauth2client.Params{JSON: order})
	if err != nil {
		return nil, err
	}
	if !IsValidResponse(result) {
		return nil, fmt.Errorf("order response has no _links")
	}

	o := &Order{Result: result}
	if err := result.Body.Decode(o); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}
	return o, nil
}

// Checkout creates the order and resolves its approval page for the configured mode.
func (c *Checkout) Checkout(ctx context.Context, order interface{}) (*Approval, error) {
	o, err := c.CreateOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	if c.mode != ModeIframe {
		href, ok := o.Link(RelUserApproval)
		if !ok {
			return nil, fmt.Errorf("order %s has no user approval link", o.Reference)
		}
		return &Approval{Mode: ModeRedirect, URL: href, Order: o}, nil
	}

	tmpl, ok := o.Link(RelExtendedUserApproval)
	if !ok {
		return nil, fmt.Errorf("order %s has no extended user approval link", o.Reference)
	}
	href, err := expandLink(tmpl, map[string]string{"mode": string(ModeIframe)})
	if err != nil {
		return nil, err
	}

	result, err := c.api.Request(ctx, oauth2client.HttpGet, href, nil)
	if err != nil {
		return nil, err
	}
	content := result.Body.Get("content")
	if !content.Exists() {
		return nil, fmt.Errorf("extended user approval has no content")
	}
	html, err := base64.StdEncoding.DecodeString(content.String())
	if err != nil {
		return nil, fmt.Errorf("failed to decode approval content: %w", err)
	}
	return &Approval{Mode: ModeIframe, URL: href, HTML: string(html), Order: o}, nil
}

// GetResource fetches an absolute resource URL, typically a HAL link.
func (c *Checkout) GetResource(ctx context.Context, href string) (*oauth2client.Result, error) {
	return c.api.Request(ctx, oauth2client.HttpGet, href, nil)
}

// IsValidResponse reports whether result is a HAL resource.
func IsValidResponse(result *oauth2client.Result) bool {
	if result == nil {
		return false
	}
	return result.Body.Get("_links").IsObject()
}

// expandLink fills an RFC 6570 templated href such as ".../extended-user-approval{?mode}".
func expandLink(href string, vars map[string]string) (string, error) {
	tmpl, err := uritemplate.New(href)
	if err != nil {
		return "", fmt.Errorf("invalid link template %q: %w", href, err)
	}
	values := uritemplate.Values{}
	for k, v := range vars {
		values.Set(k, uritemplate.String(v))
	}
	expanded, err := tmpl.Expand(values)
	if err != nil {
		return "", fmt.Errorf("failed to expand link template %q: %w", href, err)
	}
	return expanded, nil
}
