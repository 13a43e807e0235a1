package searcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/fusion"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval"
	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/tracing"
)

// fanOut queries every provider concurrently, each under its own timeout.
// Lists come back in provider order with failed providers left out; the
// call fails only when every provider failed.
func (s *Service) fanOut(ctx context.Context, providers []retrieval.Provider, query string) ([]fusion.MethodResults, error) {
	type result struct {
		list fusion.MethodResults
		err  error
	}
	log := logger.FromContext(ctx)
	results := make([]result, len(providers))

	// Provider errors are collected per slot rather than returned to the
	// group, so one failure never cancels the others.
	var g errgroup.Group
	for i, p := range providers {
		g.Go(func() error {
			start := time.Now()
			sctx, span := tracing.StartChild(ctx, "method:"+p.Name())
			defer span.End()
			pctx, cancel := s.providerContext(sctx)
			defer cancel()

			list, err := p.Search(pctx, query, s.cfg.K)
			if err == nil && pctx.Err() != nil {
				err = pctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %s after %v", apperrors.ErrTimeout, p.Name(), s.cfg.ProviderTimeout)
			}
			if s.metrics != nil {
				s.metrics.ProviderLatency.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
				if err != nil {
					s.metrics.ProviderErrorsTotal.WithLabelValues(p.Name()).Inc()
				}
			}
			span.Set("results", len(list))
			if err != nil {
				span.Set("error", err.Error())
			}
			results[i] = result{list: fusion.MethodResults{Method: p.Name(), Results: list}, err: err}
			return nil
		})
	}
	_ = g.Wait()

	lists := make([]fusion.MethodResults, 0, len(providers))
	var errs []error
	for _, r := range results {
		if r.err != nil {
			log.Warn("retrieval method failed", "method", r.list.Method, "error", r.err)
			errs = append(errs, fmt.Errorf("%s: %w", r.list.Method, r.err))
			continue
		}
		lists = append(lists, r.list)
	}
	if len(lists) == 0 && len(providers) > 0 {
		return nil, fmt.Errorf("%w: all %d methods failed: %w", apperrors.ErrProviderFailed, len(providers), errors.Join(errs...))
	}
	return lists, nil
}

func (s *Service) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.ProviderTimeout)
}
