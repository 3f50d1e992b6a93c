package domain

import "context"

// Publisher is the downstream sink. Publishing is idempotent on ExternalID.
type Publisher interface {
	PublishAuction(ctx context.Context, r AuctionRecord) error
}

// PrimaryStore returns the current primary record set used for reconciliation.
type PrimaryStore interface {
	ListPrimary(ctx context.Context) ([]AuctionRecord, error)
}

type RunLog interface {
	RecordRun(ctx context.Context, r RunReport) error
	ListRuns(ctx context.Context, limit int) ([]RunReport, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
