// Package outbox is the durable queue of side-effect work items.
//
// Items are keyed by (tenant_id, dedupe_key); enqueueing the same key twice
// returns the stored item unchanged. Every state change is a guarded update
// on (status, version), so concurrent delivery engines cannot claim or
// finish the same item twice:
//
//	pending --ClaimDue--> claimed --MarkDelivered--> delivered (attempts+1)
//	                         |--MarkFailed--> pending (attempts+1, later next_attempt_at)
//	                         |--MarkDead----> dead --Replay--> pending
//	                         `--Release-----> pending (attempts unchanged)
package outbox
