// Package delivery turns due outbox items into transport calls.
//
// Each Tick releases stale claims, claims a bounded batch and delivers it
// concurrently. Every call goes through the dependency's bulkhead and circuit
// breaker with a per-call deadline. Outcomes:
//
//   - success: MarkDelivered
//   - permanent error: MarkDead immediately
//   - other error, breaker open included: attempts+1, then MarkDead once
//     attempts reaches MaxAttempts, else MarkFailed with exponential backoff
//
// Replayed items come back as ordinary pending items and take the same path.
package delivery
