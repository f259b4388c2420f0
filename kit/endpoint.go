package kit

import "context"

// Endpoint is the transport-agnostic unit of work: a typed request in, a
// serialisable response out. HTTP handlers and MCP tools both wrap one.
type Endpoint func(ctx context.Context, request any) (any, error)
