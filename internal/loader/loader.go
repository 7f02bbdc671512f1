// Package loader batches per-request lookups of related comments.
package loader

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/utafrali/review-service/internal/domain"
)

type contextKey string

const loadersKey = contextKey("dataloaders")

// SummaryFetcher fetches comment summaries by id in a single round trip.
type SummaryFetcher interface {
	GetSummaries(ctx context.Context, ids []string) (map[string]domain.CommentSummary, error)
}

// Loaders holds the request-scoped data loaders.
type Loaders struct {
	ParentSummary *dataloader.Loader
}

// New creates a fresh set of loaders backed by fetcher.
func New(fetcher SummaryFetcher) *Loaders {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := keys.Keys()
		results := make([]*dataloader.Result, len(keys))

		summaries, err := fetcher.GetSummaries(ctx, ids)
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		for i, id := range ids {
			if s, ok := summaries[id]; ok {
				results[i] = &dataloader.Result{Data: &s}
			} else {
				results[i] = &dataloader.Result{}
			}
		}
		return results
	}

	return &Loaders{
		ParentSummary: dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(time.Millisecond)),
	}
}

// Middleware attaches a new set of loaders to every request.
func Middleware(fetcher SummaryFetcher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLoaders(r.Context(), New(fetcher))))
		})
	}
}

// For returns the loaders stored in ctx, or nil.
func For(ctx context.Context) *Loaders {
	l, _ := ctx.Value(loadersKey).(*Loaders)
	return l
}

// WithLoaders stores l in ctx.
func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey, l)
}

// ParentSummaries resolves the summaries of ids through one batch. Ids
// with no stored comment are absent from the result.
func (l *Loaders) ParentSummaries(ctx context.Context, ids []string) (map[string]domain.CommentSummary, error) {
	thunks := make([]dataloader.Thunk, len(ids))
	for i, id := range ids {
		thunks[i] = l.ParentSummary.Load(ctx, dataloader.StringKey(id))
	}

	out := make(map[string]domain.CommentSummary, len(ids))
	for i, thunk := range thunks {
		v, err := thunk()
		if err != nil {
			return nil, fmt.Errorf("load parent %s: %w", ids[i], err)
		}
		if s, ok := v.(*domain.CommentSummary); ok && s != nil {
			out[ids[i]] = *s
		}
	}
	return out, nil
}
