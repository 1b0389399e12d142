// Package httputil writes JSON responses for the API handlers and maps
// apperr kinds onto HTTP status codes, so every failure carries the same
// {"error", "code"} body.
package httputil
