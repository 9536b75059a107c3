// Package router classifies surveillance alerts and dispatches them to the
// remote processor serving their category.
package router

import "errors"

// Sentinel errors for router operations.
var (
	// ErrNoEndpoint indicates no processor endpoint is configured for the
	// alert's category.
	ErrNoEndpoint = errors.New("router: no endpoint configured")

	// ErrRemoteStatus indicates the processor answered with a non-2xx status.
	ErrRemoteStatus = errors.New("router: unexpected remote status")

	// ErrStreamClosed indicates the processor closed the event stream before
	// sending a final event.
	ErrStreamClosed = errors.New("router: stream closed before final event")
)
