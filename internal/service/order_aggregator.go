package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// OrderFetch is the merged result of one multi-status order query.
type OrderFetch struct {
	// Orders holds the stop-family orders in a tracked status, deduplicated
	// by order id.
	Orders []domain.RawOrder

	// Degraded lists the statuses whose query failed and contributed nothing.
	Degraded []domain.OrderStatus
}

// OrderAggregator fetches working orders across the tracked statuses and
// merges them into one deduplicated set.
type OrderAggregator struct {
	broker   domain.BrokerClient
	statuses []domain.OrderStatus
	window   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewOrderAggregator creates an OrderAggregator querying statuses over a
// trailing window of entered time. An empty statuses list uses
// domain.TrackedOrderStatuses.
func NewOrderAggregator(
	broker domain.BrokerClient,
	statuses []domain.OrderStatus,
	window time.Duration,
	logger *slog.Logger,
) *OrderAggregator {
	if len(statuses) == 0 {
		statuses = domain.TrackedOrderStatuses
	}
	return &OrderAggregator{
		broker:   broker,
		statuses: statuses,
		window:   window,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "order_aggregator")),
	}
}

// FetchWorkingOrders issues one query per tracked status concurrently. Each
// query is best-effort: a failure is logged and reported in Degraded but
// never aborts the others, so this call does not fail.
func (a *OrderAggregator) FetchWorkingOrders(ctx context.Context, accountHash, accessToken string) OrderFetch {
	to := a.now().UTC()
	from := to.Add(-a.window)

	batches := make([][]domain.RawOrder, len(a.statuses))
	failed := make([]bool, len(a.statuses))

	var g errgroup.Group
	for i, status := range a.statuses {
		g.Go(func() error {
			orders, err := a.broker.GetOrders(ctx, accessToken, accountHash, domain.OrderQuery{
				Status: status,
				From:   from,
				To:     to,
			})
			if err != nil {
				a.logger.WarnContext(ctx, "order_aggregator: status query failed",
					slog.String("status", string(status)),
					slog.String("error", err.Error()),
				)
				failed[i] = true
				return nil
			}
			batches[i] = orders
			return nil
		})
	}
	_ = g.Wait()

	var res OrderFetch
	for i, f := range failed {
		if f {
			res.Degraded = append(res.Degraded, a.statuses[i])
		}
	}
	res.Orders = mergeOrders(batches, a.statuses)

	a.logger.DebugContext(ctx, "order_aggregator: orders merged",
		slog.Int("stops", len(res.Orders)),
		slog.Int("degraded", len(res.Degraded)),
	)
	return res
}

// mergeOrders deduplicates batches by order id and keeps stop-family orders
// whose status is in tracked. Batches are folded in slice order, so the
// result depends only on what each query returned and not on when it
// returned. A repeated id keeps its first position and takes the value seen
// last.
func mergeOrders(batches [][]domain.RawOrder, tracked []domain.OrderStatus) []domain.RawOrder {
	trackedSet := make(map[domain.OrderStatus]bool, len(tracked))
	for _, s := range tracked {
		trackedSet[s] = true
	}

	byID := make(map[string]int)
	var merged []domain.RawOrder
	for _, batch := range batches {
		for _, o := range batch {
			if idx, ok := byID[o.OrderID]; ok {
				merged[idx] = o
				continue
			}
			byID[o.OrderID] = len(merged)
			merged = append(merged, o)
		}
	}

	out := merged[:0]
	for _, o := range merged {
		// Market hours never decide whether a stop exists; a pre-trigger
		// status counts as long as it is tracked.
		if o.Type.IsStop() && trackedSet[o.Status] {
			out = append(out, o)
		}
	}
	return out
}
