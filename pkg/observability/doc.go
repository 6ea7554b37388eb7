/*
Package observability provides tools for monitoring narrated tours.

It includes Prometheus metrics fed by lifecycle hooks and analytics events,
structured-log hooks for auditing step transitions, and a helper to chain
several hook sets into one.
*/
package observability
