/*
Package observability turns engine lifecycle hooks and stage events into
Prometheus metrics and structured log lines.
*/
package observability
