package session

import (
	"context"
	"errors"
	"testing"

	"dictsync/internal/apperr"

	"github.com/stretchr/testify/require"
)

func fullPages(offsets *[]int) PageFunc[int] {
	return func(ctx context.Context, offset, limit int) ([]int, error) {
		*offsets = append(*offsets, offset)
		return make([]int, limit), nil
	}
}

func TestPaginate(t *testing.T) {
	ctx := context.Background()

	{
		var offsets []int
		items, err := Paginate(ctx, 2500, 1000, func(ctx context.Context, offset, limit int) ([]int, error) {
			offsets = append(offsets, offset)
			n := limit
			if offset+limit > 2500 {
				n = 2500 - offset
			}
			return make([]int, n), nil
		})
		require.NoError(t, err)
		require.Len(t, items, 2500)
		require.Equal(t, []int{0, 1000, 2000}, offsets)
	}

	{
		var offsets []int
		_, err := Paginate(ctx, 2490, 1000, fullPages(&offsets))
		require.ErrorIs(t, err, apperr.ErrCountMismatch)
		require.Equal(t, apperr.KindProtocol, apperr.KindOf(err))
		require.Equal(t, []int{0, 1000, 2000}, offsets)
	}

	{
		var offsets []int
		items, err := Paginate(ctx, 0, 30, fullPages(&offsets))
		require.NoError(t, err)
		require.Empty(t, items)
		require.Empty(t, offsets)
	}

	{
		failure := errors.New("boom")
		calls := 0
		_, err := Paginate(ctx, 90, 30, func(ctx context.Context, offset, limit int) ([]int, error) {
			calls++
			if offset == 30 {
				return nil, failure
			}
			return make([]int, limit), nil
		})
		require.ErrorIs(t, err, failure)
		require.Equal(t, 2, calls)
	}
}
