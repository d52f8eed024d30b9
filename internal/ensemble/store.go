package ensemble

import "context"

// Store persists selected ensemble members.
type Store interface {
	StoreMembers(ctx context.Context, runID string, members []Member) error
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, runID string, members []Member) error

// StoreMembers implements Store.
func (f StoreFunc) StoreMembers(ctx context.Context, runID string, members []Member) error {
	return f(ctx, runID, members)
}
