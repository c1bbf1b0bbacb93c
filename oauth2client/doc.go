// Package oauth2client provides an authenticated client for the SlimPay HAPI payment API.
//
// A TokenManager obtains an access token with the OAuth2 client credentials grant and
// caches it until it expires. An APIClient attaches the token to every request; when the
// API answers 401 the token is discarded and the call is retried exactly once with a
// fresh one. Other failures are returned as typed errors:
//
//   - *TransportError: no response (connection, TLS, timeout, cancellation)
//   - *AuthExchangeError: the token endpoint refused the credentials or sent a bad token
//   - *ClientError: 4xx, including a 401 that survived the retry
//   - *ServerError: 5xx
//   - *RedirectError: the redirect chain was too long
//   - *BodyError: a 2xx body that does not parse as its declared Content-Type
//
// Usage:
//
//	client, err := oauth2client.NewAPIClient(oauth2client.Config{
//		ClientID:     "your_client_id",
//		ClientSecret: "your_client_secret",
//		BaseURL:      "https://api.preprod.slimpay.com",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := client.Request(ctx, oauth2client.HttpGet, "/creditors/democreditor", nil)
//	var clientErr *oauth2client.ClientError
//	if errors.As(err, &clientErr) {
//		log.Fatalf("rejected with %d: %s", clientErr.StatusCode, clientErr.Message)
//	}
//	if err != nil {
//		log.Fatal(err)
//	}
//	href, _ := result.Body.Link("https://api.slimpay.net/alps#get-orders")
package oauth2client
