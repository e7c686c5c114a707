package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionfolio/optionfolio/internal/refresh"
	"github.com/optionfolio/optionfolio/internal/storage"
)

type fakeQuoter struct {
	price float64
	vol   float64
	err   error
}

func (f *fakeQuoter) GetPrice(_ context.Context, _ string) (float64, error) {
	return f.price, f.err
}

func (f *fakeQuoter) GetHistoricalVolatility(_ context.Context, _ string) (float64, error) {
	return f.vol, f.err
}

type testEnv struct {
	server  *Server
	storage storage.Interface
	quoter  *fakeQuoter
}

func newTestEnv(t *testing.T, authToken string) *testEnv {
	t.Helper()

	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "portfolios.json"))
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	quoter := &fakeQuoter{price: 100, vol: 0.3}
	refresher := refresh.NewRefresher(store, quoter, logger, refresh.Config{SampleCount: 1000})
	srv := NewServer(Config{Port: 0, AuthToken: authToken}, store, quoter, refresher, logger)

	return &testEnv{server: srv, storage: store, quoter: quoter}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestPortfolioEndpoints(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": "main"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Duplicate name conflicts.
	rec = env.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": "main"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/portfolios", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list []portfolioView
	decodeJSON(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "main", list[0].Name)

	rec = env.do(t, http.MethodDelete, "/api/portfolios/main", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/portfolios/main", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateCash(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": "main"})

	rec := env.do(t, http.MethodPut, "/api/portfolios/main/cash", map[string]float64{"cash": 25_000})
	assert.Equal(t, http.StatusOK, rec.Code)

	cash, err := env.storage.GetCash("main")
	require.NoError(t, err)
	assert.Equal(t, 25_000.0, cash)

	rec = env.do(t, http.MethodPut, "/api/portfolios/main/cash", map[string]float64{"cash": -5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/portfolios/nope/cash", map[string]float64{"cash": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreatePosition(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": "main"})

	body := map[string]interface{}{
		"variant":          "short_put",
		"ticker":           "xyz",
		"quantity":         1,
		"strike":           100,
		"premium":          2,
		"expiration":       "2026-12-18",
		"underlying_price": 105,
		"implied_vol":      0.3,
	}
	rec := env.do(t, http.MethodPost, "/api/portfolios/main/positions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var view positionView
	decodeJSON(t, rec, &view)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "XYZ", view.Ticker)
	assert.Equal(t, 200.0, view.Value)
	assert.Equal(t, 200.0, float64(view.MaxGain))
	assert.Equal(t, 9800.0, float64(view.MaxLoss))
	assert.Greater(t, view.POP, 0.0)

	// Samples are generated at creation and persisted, but never served.
	stored, err := env.storage.GetPositionByID("main", view.ID)
	require.NoError(t, err)
	assert.Len(t, stored.PnLSamples, 1000)
	assert.NotContains(t, rec.Body.String(), "pnl_samples")
}

func TestCreatePosition_FetchesMissingPrice(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": "main"})
	env.quoter.price = 187.5

	body := map[string]interface{}{
		"variant":    "long_call",
		"ticker":     "AAPL",
		"quantity":   1,
		"strike":     190,
		"premium":    3,
		"expiration": "2026-12-18",
	}
	rec := env.do(t, http.MethodPost, "/api/portfolios/main/positions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var view positionView
	decodeJSON(t, rec, &view)
	assert.Equal(t, 187.5, view.UnderlyingPrice)
}

func TestCreatePosition_SharesUseHistoricalVol(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": "main"})
	env.quoter.vol = 0.42

	body := map[string]interface{}{
		"variant":          "shares",
		"ticker":           "AAPL",
		"quantity":         10,
		"expiration":       "2027-08-26",
		"underlying_price": 180,
	}
	rec := env.do(t, http.MethodPost, "/api/portfolios/main/positions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var view positionView
	decodeJSON(t, rec, &view)
	assert.Equal(t, 0.42, view.ImpliedVol)
}

func TestCreatePosition_Validation(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": "main"})

	tests := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"unknown variant", map[string]interface{}{
			"variant": "iron_condor", "ticker": "XYZ", "quantity": 1,
			"strike": 100, "premium": 2, "expiration": "2026-12-18",
			"underlying_price": 105}, http.StatusBadRequest},
		{"missing strike", map[string]interface{}{
			"variant": "short_put", "ticker": "XYZ", "quantity": 1,
			"premium": 2, "expiration": "2026-12-18",
			"underlying_price": 105}, http.StatusBadRequest},
		{"bad expiration", map[string]interface{}{
			"variant": "short_put", "ticker": "XYZ", "quantity": 1,
			"strike": 100, "premium": 2, "expiration": "next friday",
			"underlying_price": 105}, http.StatusBadRequest},
		{"zero quantity", map[string]interface{}{
			"variant": "short_put", "ticker": "XYZ", "quantity": 0,
			"strike": 100, "premium": 2, "expiration": "2026-12-18",
			"underlying_price": 105}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/portfolios/main/positions", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCreatePosition_QuoteFailure(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": "main"})
	env.quoter.err = errors.New("provider down")

	body := map[string]interface{}{
		"variant":    "long_call",
		"ticker":     "AAPL",
		"quantity":   1,
		"strike":     190,
		"premium":    3,
		"expiration": "2026-12-18",
	}
	rec := env.do(t, http.MethodPost, "/api/portfolios/main/positions", body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestUpdatePosition(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": "main"})

	rec := env.do(t, http.MethodPost, "/api/portfolios/main/positions", map[string]interface{}{
		"variant": "short_put", "ticker": "XYZ", "quantity": 1,
		"strike": 100, "premium": 2, "expiration": "2026-12-18",
		"underlying_price": 105, "implied_vol": 0.3,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created positionView
	decodeJSON(t, rec, &created)

	rec = env.do(t, http.MethodPut,
		fmt.Sprintf("/api/portfolios/main/positions/%s", created.ID),
		map[string]interface{}{"quantity": 3, "premium": 2.5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated positionView
	decodeJSON(t, rec, &updated)
	assert.Equal(t, 3, updated.Quantity)
	assert.Equal(t, 2.5, updated.Premium)
	assert.Equal(t, 750.0, updated.Value)

	rec = env.do(t, http.MethodPut, "/api/portfolios/main/positions/nope",
		map[string]interface{}{"quantity": 2})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletePosition(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": "main"})

	rec := env.do(t, http.MethodPost, "/api/portfolios/main/positions", map[string]interface{}{
		"variant": "long_put", "ticker": "XYZ", "quantity": 1,
		"strike": 100, "premium": 1, "expiration": "2026-12-18",
		"underlying_price": 105, "implied_vol": 0.3,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created positionView
	decodeJSON(t, rec, &created)

	rec = env.do(t, http.MethodDelete,
		fmt.Sprintf("/api/portfolios/main/positions/%s", created.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete,
		fmt.Sprintf("/api/portfolios/main/positions/%s", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRiskReport_InfinityEncodesAsString(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": "main"})
	env.do(t, http.MethodPut, "/api/portfolios/main/cash", map[string]float64{"cash": 10_000})

	rec := env.do(t, http.MethodPost, "/api/portfolios/main/positions", map[string]interface{}{
		"variant": "short_call", "ticker": "XYZ", "quantity": 1,
		"strike": 110, "premium": 2, "expiration": "2026-12-18",
		"underlying_price": 105, "implied_vol": 0.3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/portfolios/main/risk", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var raw map[string]interface{}
	decodeJSON(t, rec, &raw)
	assert.Equal(t, "Infinity", raw["gross_exposure"])
	assert.Equal(t, "Infinity", raw["leverage_ratio"])
	assert.Equal(t, 10_000.0, raw["total_value"])
	assert.Equal(t, 1.0, raw["open_positions"])
}

func TestRiskReport_EmptyPortfolio(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": "main"})

	rec := env.do(t, http.MethodGet, "/api/portfolios/main/risk", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]interface{}
	decodeJSON(t, rec, &raw)
	assert.Equal(t, 1.0, raw["cash_to_position_ratio"])
	assert.Equal(t, 0.0, raw["total_value"])
}

func TestDistributionEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": "main"})

	env.do(t, http.MethodPost, "/api/portfolios/main/positions", map[string]interface{}{
		"variant": "short_put", "ticker": "XYZ", "quantity": 1,
		"strike": 100, "premium": 2, "expiration": "2026-12-18",
		"underlying_price": 105, "implied_vol": 0.3,
	})

	rec := env.do(t, http.MethodGet, "/api/portfolios/main/distribution", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]interface{}
	decodeJSON(t, rec, &raw)
	assert.Equal(t, 1.0, raw["positions"])
	assert.Equal(t, 1000.0, raw["samples"])
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": "main"})

	env.do(t, http.MethodPost, "/api/portfolios/main/positions", map[string]interface{}{
		"variant": "short_put", "ticker": "XYZ", "quantity": 1,
		"strike": 100, "premium": 2, "expiration": "2026-12-18",
		"underlying_price": 105, "implied_vol": 0.3,
	})

	env.quoter.price = 112.34
	rec := env.do(t, http.MethodPost, "/api/portfolios/main/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	positions, err := env.storage.GetPositions("main")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 112.34, positions[0].UnderlyingPrice)

	rec = env.do(t, http.MethodPost, "/api/portfolios/nope/refresh", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, "sekrit")

	// Health stays open.
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/portfolios", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/portfolios", nil)
	req.Header.Set("X-Auth-Token", "sekrit")
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Query-parameter token also works.
	rec = env.do(t, http.MethodGet, "/api/portfolios?token=sekrit", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
