// Package flightcache is an in-process, asynchronous memoization cache for
// idempotent producer functions whose results are expensive to compute.
//
// A caller wraps a producer with Wrap and gets back a Cache that serves
// cached values, coordinates concurrent callers for the same key onto a
// single producer invocation (single-flight), and serves a still-valid
// but update-due value while refreshing it in the background
// (stale-while-revalidate).
package flightcache
