// Package server hosts the Fiber HTTP service in front of the agent: the
// request-id middleware, Host header resolution into an upstream target, and
// the shared upstream HTTP client. Paths under /-/ are reserved for the
// agent's own control, queue and diagnostics routes; every other path is an
// intercepted page request handed to the ProxyHandler.
package server
