/*
Package observability provides tools for monitoring conversations.

It turns domain.LifecycleHooks into Prometheus collectors and structured log
lines, and combines several hook sets into one so that metrics, logging and
the gateway's event stream can observe the same engine.
*/
package observability
