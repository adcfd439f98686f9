// Package timeouts holds the timeout budgets shared by the schedule server
// and its commands, so every boundary layer picks them up from one place.
package timeouts

import "time"

// Query caps the time allowed for a single storage query issued while
// serving an HTTP request.
const Query = 5 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
