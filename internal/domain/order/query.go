package order

import (
	"cmp"
	"context"
	"slices"

	"go.opentelemetry.io/otel/codes"
)

// ListOrders returns the caller's visible orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.ListOrders")
	defer span.End()

	if userID == "" {
		return nil, ErrUnauthenticated
	}

	orders, err := s.orders.ListVisibleForUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list orders")
		return nil, persistence("list orders", err)
	}

	visible := orders[:0]
	for _, o := range orders {
		if o.Visible() {
			visible = append(visible, o)
		}
	}
	slices.SortStableFunc(visible, func(a, b Order) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	return visible, nil
}
