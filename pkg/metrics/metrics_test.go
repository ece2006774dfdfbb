package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
	"github.com/junbin-yang/go-fsmkit/pkg/statemachine"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("")
	require.NoError(t, c.Register(reg))

	var d *statemachine.Deferred
	m, err := statemachine.New(statemachine.Config{
		Name:    "loader",
		Initial: "idle",
		Transitions: statemachine.Transitions{
			"load": {
				From:            "idle",
				To:              statemachine.To("ready"),
				TransitionState: "loading",
				Async: func(ctx context.Context, args ...any) statemachine.Pending {
					d = statemachine.NewDeferred()
					return d
				},
			},
			"reset": {From: statemachine.Wildcard, To: statemachine.To("idle")},
		},
	}, statemachine.WithObserver(c), statemachine.WithLogger(logger.NewNop()))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.Fire(ctx, "load"))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inflight.WithLabelValues("loader")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("loader", "load", "ASYNC", "started")))

	d.Resolve()
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inflight.WithLabelValues("loader")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("loader", "load", "ASYNC", "completed")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.duration))

	require.NoError(t, m.Fire(ctx, "reset"))
	require.NoError(t, m.Fire(ctx, "load"))
	require.True(t, m.Cancel())
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inflight.WithLabelValues("loader")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("loader", "load", "ASYNC", "cancelled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("loader", "reset", "SYNC", "completed")))

	assert.Error(t, c.Register(reg), "double registration")
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("demo")
	require.NoError(t, c.Register(reg))
	c.OnTransition(statemachine.Event{Machine: "door", Transition: "open", Type: statemachine.TypeSync, Outcome: statemachine.OutcomeCompleted})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `demo_fsm_transitions_total{machine="door",outcome="completed",transition="open",type="SYNC"} 1`))
}
