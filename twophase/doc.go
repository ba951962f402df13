// Package twophase coordinates an external side effect with a local commit.
//
// Phase 1 calls the external system through its circuit breaker, outside any
// local transaction. Phase 2 persists the local record referencing the
// external id in one transaction. When Phase 2 fails after Phase 1 succeeded,
// Phase 1 is never retried; a compensation item is enqueued in the outbox
// with the external id as its dedupe key, so at most one compensation exists
// per external session.
//
//	res, err := coord.Execute(ctx, twophase.Request{
//	    TenantID:   "acme",
//	    Dependency: "stripe",
//	    Operation:  "checkout",
//	    External: func(ctx context.Context) (string, error) {
//	        s, err := client.CreateCheckoutSession(ctx, req)
//	        if err != nil {
//	            return "", err
//	        }
//	        return s.ID, nil
//	    },
//	    Commit: func(ctx context.Context, tx *gorm.DB, externalID string) error {
//	        return tx.Create(&Intent{SessionID: externalID}).Error
//	    },
//	})
package twophase
