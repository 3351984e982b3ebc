// Package downstream holds plumbing shared by the gateway's outbound API
// clients.
package downstream

import (
	"fmt"
	"net/http"
	"time"

	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/telemetry"
)

// Error is a non-success response from a downstream API. Handlers mirror
// Status to the caller instead of collapsing everything to 500; Body carries
// the downstream response text for diagnostics.
type Error struct {
	Target string
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Target, e.Status)
}

// NewHTTPClient builds the http.Client used for downstream calls: bounded
// timeout, trace-propagating transport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: telemetry.WrapTransport(nil),
	}
}
