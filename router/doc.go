// Package router wraps http.ServeMux with OpenAPI validation, CORS,
// timeouts, and logging defaults. ExampleNew_customOptions demonstrates how to
// combine built-in and custom middlewares.
package router
