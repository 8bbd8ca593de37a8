package session

import (
	"context"
	"fmt"

	"dictsync/internal/apperr"
)

// PageFunc fetches limit records starting at offset.
type PageFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// Paginate fetches ceil(total/pageSize) pages one after another and concatenates them, the
// result must hold exactly total records.
func Paginate[T any](ctx context.Context, total, pageSize int, fetch PageFunc[T]) ([]T, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("invalid page size %d", pageSize)
	}
	if total <= 0 {
		return []T{}, nil
	}

	pages := (total + pageSize - 1) / pageSize
	out := make([]T, 0, total)
	for page := 0; page < pages; page++ {
		items, err := fetch(ctx, page*pageSize, pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d/%d: %w", page+1, pages, err)
		}
		out = append(out, items...)
	}
	if len(out) != total {
		return nil, apperr.Newf(apperr.KindProtocol, "paginate", "%w: expected %d, got %d", apperr.ErrCountMismatch, total, len(out))
	}
	return out, nil
}
