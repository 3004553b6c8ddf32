// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Upload constants
const (
	// MaxUploadSize is the maximum multipart form size of an attendance request (20MB)
	MaxUploadSize = 20 << 20

	// MaxImageBytes is the maximum size of one reference or probe image read from disk
	MaxImageBytes = 20 << 20
)

// Server constants
const (
	// RequestTimeout bounds one HTTP request in the chi Timeout middleware
	RequestTimeout = 2 * time.Minute

	// ReadTimeout is the HTTP server read timeout
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the HTTP server write timeout
	WriteTimeout = 2 * time.Minute

	// IdleTimeout is the HTTP server keep-alive timeout
	IdleTimeout = 60 * time.Second

	// ShutdownTimeout is how long graceful shutdown waits for in-flight requests
	ShutdownTimeout = 10 * time.Second
)
