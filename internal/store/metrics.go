package store

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchedActions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shellkit",
		Subsystem: "store",
		Name:      "dispatched_actions_total",
		Help:      "Actions that entered the dispatch path.",
	})

	epicFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shellkit",
		Subsystem: "store",
		Name:      "epic_failures_total",
		Help:      "Epics that returned an error or panicked.",
	}, []string{"epic"})
)

func countDispatch(next DispatchFunc) DispatchFunc {
	return func(ctx context.Context, a Action) error {
		dispatchedActions.Inc()
		return next(ctx, a)
	}
}
