// Package ratelimit implements a fixed-window request limiter whose counters
// live in a shared store (Redis) so every instance enforces the same limit.
//
// When the store fails, AdaptiveLimiter switches to a locked in-memory
// limiter for a bounded period and probes the store on an interval. A
// successful probe resumes the shared store immediately and discards the
// in-memory counters. The fallback enforces the same limit per instance; it
// never allows unconditionally.
package ratelimit
