// Package middleware provides HTTP middleware for the assistant API.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics with bounded path labels
package middleware
