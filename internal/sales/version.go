package sales

import (
	"context"
	"sync/atomic"
)

// LocalVersion is an in-process VersionTracker for single-replica setups.
type LocalVersion struct {
	v atomic.Int64
}

// Current implements VersionTracker.
func (l *LocalVersion) Current(context.Context) (int64, error) {
	return l.v.Load(), nil
}

// Bump implements VersionTracker.
func (l *LocalVersion) Bump(context.Context) (int64, error) {
	return l.v.Add(1), nil
}
