package catalog

import "context"

const (
	// internalPageSize is the fixed backend page size. Client offsets are
	// mapped onto it so varying client limits never shift page boundaries.
	internalPageSize = 50
	// maxUnpaged caps listings for clients that send no limit.
	maxUnpaged = 1000
)

// Page is the client requested window.
type Page struct {
	Offset int
	// Limit <= 0 means everything, up to maxUnpaged.
	Limit int
}

// pageFetcher fetches one 1-indexed backend page and reports the total count.
type pageFetcher[T any] func(ctx context.Context, page, perPage int) ([]T, int, error)

// fetchWindow returns the items in [offset, offset+limit) by fetching
// consecutive internal pages and slicing locally.
func fetchWindow[T any](ctx context.Context, p Page, fetch pageFetcher[T]) ([]T, int, error) {
	offset := max(p.Offset, 0)
	limit := p.Limit
	if limit <= 0 || limit > maxUnpaged {
		limit = maxUnpaged
	}

	page := offset/internalPageSize + 1
	skip := offset % internalPageSize
	want := skip + limit

	var collected []T
	total := 0
	for {
		items, count, err := fetch(ctx, page, internalPageSize)
		if err != nil {
			return nil, 0, err
		}
		total = count
		collected = append(collected, items...)
		if len(collected) >= want || len(items) < internalPageSize || page*internalPageSize >= count {
			break
		}
		page++
	}

	if skip >= len(collected) {
		return nil, total, nil
	}
	return collected[skip:min(want, len(collected))], total, nil
}

// sliceWindow applies a client window to an already complete list.
func sliceWindow[T any](all []T, p Page) []T {
	offset := max(p.Offset, 0)
	if offset >= len(all) {
		return nil
	}
	end := len(all)
	if p.Limit > 0 {
		end = min(offset+p.Limit, len(all))
	}
	return all[offset:end]
}
