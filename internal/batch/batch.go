// Package batch iterates the forum's ordered document-ID sets in fixed-size
// rank pages. Rebuilds and bulk clears run through here so they never hold
// more than one page of IDs in memory.
package batch

import (
	"context"
	"fmt"

	"github.com/forumkit/searchsync/internal/store"
	apperrors "github.com/forumkit/searchsync/pkg/errors"
)

// DefaultPageSize bounds how many document IDs a single page carries.
const DefaultPageSize = 500

// ForEach calls fn with successive rank pages of set until the set is
// exhausted. Pages are disjoint, at most pageSize long, and delivered in
// rank order; fn never runs concurrently with itself. A set read failure
// is reported as an iteration error; an error from fn stops the walk and
// is returned as-is.
func ForEach(ctx context.Context, st store.Store, set string, pageSize int64, fn func(context.Context, []int64) error) error {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	for start := int64(0); ; start += pageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		stop := start + pageSize - 1
		ids, err := st.SortedSetRange(ctx, set, start, stop)
		if err != nil {
			return fmt.Errorf("reading %s ranks %d-%d: %w: %w", set, start, stop, apperrors.ErrIteration, err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := fn(ctx, ids); err != nil {
			return err
		}
		if int64(len(ids)) < pageSize {
			return nil
		}
	}
}
