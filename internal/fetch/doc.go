// Package fetch defines the transport-neutral request/response pair that
// strategy handlers operate on, plus the HTTP implementation of Fetcher used
// to reach the origin and third-party hosts.
package fetch
