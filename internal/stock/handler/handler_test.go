package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/medflow-stock/internal/stock/events"
	"github.com/medflow/medflow-stock/internal/stock/handler"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/httputil"
	"github.com/medflow/medflow-stock/pkg/i18n"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/metrics"
	"github.com/medflow/medflow-stock/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	db := mockDB.Database()
	log := logger.Nop()
	m := metrics.New()
	pub := events.New(testutil.NewMockPublisher(), log)
	stores := service.NewStores(db, 3)
	batcher := service.NewBatcher(db, stores.Groups)
	distribution := service.NewDistributionService(db, stores, batcher, "", m, pub, log)

	svc := &handler.Services{
		Stores:       stores,
		Batcher:      batcher,
		Transfers:    service.NewTransferService(db, stores, batcher, m, pub, log),
		Ledger:       service.NewLedgerService(db, stores, batcher, m, pub, log),
		Receiving:    service.NewReceivingService(db, stores, distribution, m, pub, log),
		Distribution: distribution,
		Intake:       service.NewIntakeService(db, stores, batcher, m, pub, log),
	}

	r := chi.NewRouter()
	r.Use(i18n.Middleware)
	handler.Mount(r, svc, log)
	return r, mockDB
}

func decodeError(t *testing.T, body []byte) *httputil.ErrorBody {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

var warehouse = map[string]interface{}{"warehouse_kind": "central", "hospital_id": 1, "site_id": 2}

func TestMount_RejectsBadRequests(t *testing.T) {
	cases := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed transfer body",
			method:     http.MethodPost,
			path:       "/transfers",
			body:       "not an object",
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "unknown field",
			method:     http.MethodPost,
			path:       "/transfers",
			body:       map[string]interface{}{"from": warehouse, "to": warehouse, "items": []map[string]int{{"lot_id": 1, "quantity": 1}}, "priority": "high"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "transfer without items",
			method:     http.MethodPost,
			path:       "/transfers",
			body:       map[string]interface{}{"from": warehouse, "to": warehouse, "items": []map[string]int{}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:   "unsupported warehouse kind in body",
			method: http.MethodPost,
			path:   "/movements",
			body: map[string]interface{}{
				"from":  map[string]interface{}{"warehouse_kind": "morgue", "hospital_id": 1, "site_id": 2},
				"to":    warehouse,
				"items": []map[string]int{{"lot_id": 1, "quantity": 1}},
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "CONFIGURATION_MISSING",
		},
		{
			name:       "unsupported warehouse kind in path",
			method:     http.MethodGet,
			path:       "/warehouses/morgue/hospitals/1/sites/2",
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "CONFIGURATION_MISSING",
		},
		{
			name:       "non numeric movement id",
			method:     http.MethodGet,
			path:       "/movements/abc",
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "cancel without reason",
			method:     http.MethodPost,
			path:       "/movements/9/cancel",
			body:       map[string]string{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "courier state outside the allowed set",
			method:     http.MethodPost,
			path:       "/movements/9/tracking",
			body:       map[string]interface{}{"state": "lost"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "latitude out of range",
			method:     http.MethodPost,
			path:       "/movements/9/tracking",
			body:       map[string]interface{}{"state": "en_route", "latitude": 120.5},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "intake with malformed expiry",
			method:     http.MethodPost,
			path:       "/intakes",
			body:       map[string]interface{}{"to": warehouse, "lines": []map[string]interface{}{{"supply_id": 1, "batch_number": "B1", "quantity": 5, "expiry_date": "31/12/2027"}}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "patient dispatch without patient",
			method:     http.MethodPost,
			path:       "/dispatches/patient",
			body:       map[string]interface{}{"from": warehouse, "items": []map[string]int{{"lot_id": 1, "quantity": 1}}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "bulk distribution with unknown strategy",
			method:     http.MethodPost,
			path:       "/distributions/bulk",
			body:       map[string]interface{}{"origin": warehouse, "strategy": "round_robin", "lines": []map[string]interface{}{{"supply_id": 1, "total_quantity": 10}}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "proportional distribution without lots",
			method:     http.MethodPost,
			path:       "/distributions/proportional",
			body:       map[string]interface{}{"origin": warehouse},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, mockDB := newTestRouter(t)

			rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(tc.method, tc.path, tc.body))

			testutil.AssertStatus(t, rr, tc.wantStatus)
			assert.Equal(t, tc.wantCode, decodeError(t, rr.Body.Bytes()).Code)
			mockDB.ExpectationsWereMet(t)
		})
	}
}

func TestMovementHandler_GetNotFound(t *testing.T) {
	router, mockDB := newTestRouter(t)

	mockDB.ExpectQuery("FROM movements WHERE id = $1").
		WithArgs(int64(404)).
		WillReturnRows(testutil.MockRows("id"))

	req := testutil.NewHTTPRequest(http.MethodGet, "/movements/404", nil)
	req.Header.Set("Accept-Language", "en")
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusNotFound)
	body := decodeError(t, rr.Body.Bytes())
	assert.Equal(t, "NOT_FOUND", body.Code)
	assert.Equal(t, "movement not found", body.Message)
	mockDB.ExpectationsWereMet(t)
}

func TestMovementHandler_TrackingNotFoundIsSpanishByDefault(t *testing.T) {
	router, mockDB := newTestRouter(t)

	mockDB.ExpectQuery("FROM movements WHERE id = $1").
		WithArgs(int64(7)).
		WillReturnRows(testutil.MockRows("id"))

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/movements/7/tracking", nil))

	testutil.AssertStatus(t, rr, http.StatusNotFound)
	assert.Equal(t, "movement no encontrado", decodeError(t, rr.Body.Bytes()).Message)
	mockDB.ExpectationsWereMet(t)
}

func TestDistributionHandler_Percentages(t *testing.T) {
	router, mockDB := newTestRouter(t)

	mockDB.ExpectQuery("FROM hospital_type_percentages").
		WillReturnRows(testutil.MockRows("class1", "class2", "class3", "class4").
			AddRow("15.00", "15.00", "30.00", "40.00"))

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/percentages", nil))

	testutil.AssertStatus(t, rr, http.StatusOK)
	var resp struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	testutil.ParseJSONBody(t, rr, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "15", resp.Data["class1"])
	assert.Equal(t, "40", resp.Data["class4"])
	mockDB.ExpectationsWereMet(t)
}

func TestDistributionHandler_PercentagesMissing(t *testing.T) {
	router, mockDB := newTestRouter(t)

	mockDB.ExpectQuery("FROM hospital_type_percentages").
		WillReturnRows(testutil.MockRows("class1", "class2", "class3", "class4"))

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/percentages", nil))

	testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
	assert.Equal(t, "CONFIGURATION_MISSING", decodeError(t, rr.Body.Bytes()).Code)
	mockDB.ExpectationsWereMet(t)
}
