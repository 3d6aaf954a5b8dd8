// Package probe turns database, MongoDB, HTTP, and custom ping functions
// into named readiness checks, and runs sets of them concurrently into a
// Report consumed by the health resource.
package probe
