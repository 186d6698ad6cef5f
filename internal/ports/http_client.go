package ports

import "net/http"

// HTTPClient executes the HTTP requests built by the HTTP transport.
// *http.Client and oauth2-wrapped clients satisfy this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
