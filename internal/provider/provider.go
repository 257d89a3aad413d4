// Package provider defines the image-generation capability boundary.
//
// The gateway treats the provider as an opaque capability: submit a prompt
// plus one or two images, receive a response body of unreliable shape. The
// orchestrator owns artifact extraction; clients here only classify
// transport-level failures.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Image is an input image for a generation call.
type Image struct {
	Data     []byte
	MimeType string
}

// Request carries the composed prompt and input images.
type Request struct {
	Prompt string
	Images []Image
}

// ErrUnavailable marks a transient failure: network error, timeout, or a
// 5xx-equivalent from the provider. Transient failures are retried by the
// orchestrator; everything else is not.
var ErrUnavailable = errors.New("provider unavailable")

// RequestError is a permanent provider-side rejection of the request itself
// (bad API key, malformed body). Not retried.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("provider rejected request: status %d", e.StatusCode)
}

// ImageGenerator is the external generation capability. Implementations
// return the raw response body; the caller extracts the artifact.
type ImageGenerator interface {
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
}
