// Package kit holds the transport-agnostic endpoint plumbing shared by the
// sift tool surfaces.
package kit

import "context"

// Endpoint is a transport-agnostic handler: typed request in, response out.
type Endpoint func(ctx context.Context, req any) (any, error)
