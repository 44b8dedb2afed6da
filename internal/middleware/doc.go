// Package middleware provides the HTTP middleware chain of the API server.
//
// It includes:
//   - Access logging in W3C Extended Log Format, with health checks optional
//   - Prometheus request metrics labelled by route template
//   - Gzip compression of JSON responses
package middleware
