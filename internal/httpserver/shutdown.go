package httpserver

import "time"

// ShutdownTimeout bounds graceful shutdown, including in-flight uploads.
var ShutdownTimeout = 30 * time.Second
