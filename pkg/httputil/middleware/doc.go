// Package middleware provides the HTTP middleware mounted in front of the REST
// routes: request ids, access logging and CORS.
package middleware
