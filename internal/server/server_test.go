package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
	"github.com/junbin-yang/go-fsmkit/pkg/metrics"
	"github.com/junbin-yang/go-fsmkit/pkg/statemachine"
)

type fixture struct {
	srv     *httptest.Server
	group   *statemachine.Group
	pending *statemachine.Deferred
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{group: statemachine.NewGroup()}

	reg := prometheus.NewRegistry()
	col := metrics.NewCollector("")
	require.NoError(t, col.Register(reg))

	opts := []statemachine.Option{
		statemachine.WithLogger(logger.NewNop()),
		statemachine.WithObserver(col),
		statemachine.WithHistory(10),
	}

	door, err := statemachine.New(statemachine.Config{
		Name:    "door",
		Initial: "closed",
		Transitions: statemachine.Transitions{
			"open":  {From: "closed", To: statemachine.To("opened")},
			"close": {From: "opened", To: statemachine.To("closed")},
			"route": {
				From:      "opened",
				To:        statemachine.FanOut(map[string]statemachine.State{"in": "inside", "out": "outside"}),
				OnResolve: func(args ...any) string {
					if len(args) == 0 {
						return ""
					}
					s, _ := args[0].(string)
					return s
				},
			},
		},
	}, opts...)
	require.NoError(t, err)
	require.NoError(t, f.group.Add(door))

	loader, err := statemachine.New(statemachine.Config{
		Name:    "loader",
		Initial: "idle",
		Transitions: statemachine.Transitions{
			"load": {
				From:            "idle",
				To:              statemachine.To("ready"),
				TransitionState: "loading",
				Async: func(ctx context.Context, args ...any) statemachine.Pending {
					f.pending = statemachine.NewDeferred()
					return f.pending
				},
			},
		},
	}, opts...)
	require.NoError(t, err)
	require.NoError(t, f.group.Add(loader))

	s := New(f.group, WithLogger(logger.NewNop()), WithMetrics("/metrics", metrics.Handler(reg)))
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var raw any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		if m, ok := raw.(map[string]any); ok {
			out = m
		} else {
			out = map[string]any{"items": raw}
		}
	}
	return resp.StatusCode, out
}

func TestServer_ListAndGet(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/machines", "")
	require.Equal(t, http.StatusOK, code)
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "door", items[0].(map[string]any)["name"])

	code, body = f.do(t, http.MethodGet, "/machines/door", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "closed", body["record"].(map[string]any)["current"])
	assert.Equal(t, []any{"open"}, body["available"])

	code, _ = f.do(t, http.MethodGet, "/machines/garage", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_Fire(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/machines/door/fire/open", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["ignored"])
	assert.Equal(t, "opened", body["machine"].(map[string]any)["record"].(map[string]any)["current"])

	code, body = f.do(t, http.MethodPost, "/machines/door/fire/open", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ignored"])

	code, _ = f.do(t, http.MethodPost, "/machines/door/fire/fly", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = f.do(t, http.MethodPost, "/machines/door/fire/route", `{"args":["sideways"]}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body["error"], "sideways")

	code, _ = f.do(t, http.MethodPost, "/machines/door/fire/route", `{"args":`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(t, http.MethodPost, "/machines/door/fire/route", `{"args":["in"]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "inside", body["machine"].(map[string]any)["record"].(map[string]any)["current"])

	code, body = f.do(t, http.MethodGet, "/machines/door/history", "")
	require.Equal(t, http.StatusOK, code)
	history := body["items"].([]any)
	require.Len(t, history, 3)
	assert.Equal(t, "failed", history[1].(map[string]any)["outcome"])
	assert.NotEmpty(t, history[1].(map[string]any)["error"])
}

func TestServer_Cancel(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/machines/loader/cancel", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["cancelled"])

	code, body = f.do(t, http.MethodPost, "/machines/loader/fire/load", "")
	require.Equal(t, http.StatusOK, code)
	rec := body["machine"].(map[string]any)["record"].(map[string]any)
	assert.Equal(t, "loading", rec["current"])
	assert.Equal(t, "STARTED", rec["status"])

	code, body = f.do(t, http.MethodPost, "/machines/loader/cancel", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["cancelled"])
	assert.Equal(t, "FAILED", body["machine"].(map[string]any)["record"].(map[string]any)["status"])
}

func TestServer_MetricsAndReload(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/machines/door/fire/open", "")

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s := New(f.group, WithLogger(logger.NewNop()))
	s.SetGroup(statemachine.NewGroup())
	assert.Equal(t, 0, s.Group().Len())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "metrics are not mounted without a handler")
}
