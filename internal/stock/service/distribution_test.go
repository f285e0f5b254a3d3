package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/medflow/medflow-stock/internal/stock/distribution"
	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/messaging"
	"github.com/medflow/medflow-stock/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributionService_Guards(t *testing.T) {
	ctx := context.Background()
	central := domain.WarehouseRef{Kind: domain.KindCentral, HospitalID: 1, SiteID: 2}

	t.Run("unknown strategy", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		h := newHarness(mockDB.Database())

		_, err := h.distribution.DistributeBulk(ctx, service.BulkRequest{
			Origin:   central,
			Strategy: "round_robin",
			Lines:    []service.BulkLine{{SupplyID: 3, TotalQuantity: 10}},
		})
		assert.True(t, errors.Is(err, errors.ErrBadRequest))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("proportional ships from central only", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		h := newHarness(mockDB.Database())

		_, err := h.distribution.DistributeProportional(ctx, service.ProportionalRequest{
			Origin: domain.WarehouseRef{Kind: domain.KindPrimary, HospitalID: 1, SiteID: 2},
			LotIDs: []int64{7},
		})
		assert.True(t, errors.Is(err, errors.ErrBadRequest))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("missing percentages", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		h := newHarness(mockDB.Database())

		mockDB.ExpectQuery("FROM hospital_type_percentages").
			WillReturnRows(testutil.MockRows("class1", "class2", "class3", "class4"))

		_, err := h.distribution.DistributeProportional(ctx, service.ProportionalRequest{
			Origin: central,
			LotIDs: []int64{7},
		})
		assert.True(t, errors.Is(err, errors.ErrConfigurationMissing))
		mockDB.ExpectationsWereMet(t)
	})
}

// classWorld is a central warehouse plus hospitals per class, each with a
// primary warehouse
type classWorld struct {
	fx      *testutil.FixtureFactory
	origin  int64
	central domain.WarehouseRef
	byClass map[string][]int64
	supply  int64
	lots    []int64
}

func newClassWorld(t *testing.T, db *database.DB, counts map[string]int, stock ...int) *classWorld {
	t.Helper()
	fx := testutil.NewFixtureFactory(db)
	w := &classWorld{fx: fx, byClass: make(map[string][]int64)}
	w.origin = fx.Hospital(t, testutil.WithClassification("central"))
	w.central = domain.WarehouseRef{Kind: domain.KindCentral, HospitalID: w.origin, SiteID: fx.Site(t, w.origin, "central")}

	for _, label := range []string{"Tipo 1", "tipo2", "hospital_tipo3", "Hospital Tipo 4"} {
		for i := 0; i < counts[label]; i++ {
			id := fx.Hospital(t, testutil.WithClassification(label))
			fx.Site(t, id, "primary")
			w.byClass[label] = append(w.byClass[label], id)
		}
	}
	fx.Percentages(t, "15", "15", "30", "40")

	w.supply = fx.Supply(t, "Jeringa Desechable 5ml")
	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, qty := range stock {
		lot := fx.Lot(t, w.supply, w.origin, testutil.WithExpiry(expiry.AddDate(0, i, 0)))
		fx.Stock(t, "central", lot, w.central.SiteID, w.origin, qty)
		w.lots = append(w.lots, lot)
	}
	return w
}

func allocatedTo(res *service.DistributionResult) map[int64]int {
	out := make(map[int64]int)
	for _, d := range res.Destinations {
		out[d.HospitalID] = d.AllocatedQuantity
	}
	return out
}

var standardCounts = map[string]int{"Tipo 1": 10, "tipo2": 2, "hospital_tipo3": 5, "Hospital Tipo 4": 1}

func TestDistributionService_Integration(t *testing.T) {
	skipWithoutDatabase(t)
	ctx := context.Background()

	t.Run("class split of 2497", func(t *testing.T) {
		db := suite.SetupStockSchema(t, ctx)
		h := newHarness(db)
		w := newClassWorld(t, db, standardCounts, 1500, 1000)

		res, err := h.distribution.DistributeBulk(ctx, service.BulkRequest{
			Origin:   w.central,
			Strategy: distribution.StrategyClassSplit,
			Lines:    []service.BulkLine{{SupplyName: "jeringa  desechable 5ML", TotalQuantity: 2497}},
			UserID:   4,
		})
		require.NoError(t, err)

		assert.Equal(t, 2495, res.Allocated)
		assert.Equal(t, 2, res.Remainder)
		assert.Contains(t, res.Skipped, w.origin)
		require.Len(t, res.Lines, 1)
		assert.Equal(t, w.supply, res.Lines[0].SupplyID)
		assert.Equal(t, 2, res.Lines[0].Remainder)
		require.Len(t, res.Destinations, 18)

		got := allocatedTo(res)
		for i, id := range w.byClass["Tipo 1"] {
			want := 37
			if i < 4 {
				want = 38
			}
			assert.Equal(t, want, got[id], "tipo1 hospital %d", i)
		}
		for _, id := range w.byClass["tipo2"] {
			assert.Equal(t, 187, got[id])
		}
		for i, id := range w.byClass["hospital_tipo3"] {
			want := 149
			if i < 4 {
				want = 150
			}
			assert.Equal(t, want, got[id])
		}
		assert.Equal(t, 998, got[w.byClass["Hospital Tipo 4"][0]])

		// earliest lot drains first
		assert.Equal(t, 0, w.fx.StockQuantity(t, "central", w.lots[0], w.central.SiteID, w.origin))
		assert.Equal(t, 5, w.fx.StockQuantity(t, "central", w.lots[1], w.central.SiteID, w.origin))

		event, ok := h.publisher.Find(messaging.EventDistributionCompleted)
		require.True(t, ok)
		payload := event.Payload.(messaging.DistributionCompletedEvent)
		assert.Len(t, payload.MovementIDs, 18)
		assert.Equal(t, 2, payload.Remainder)
	})

	t.Run("per hospital percentage is the default", func(t *testing.T) {
		db := suite.SetupStockSchema(t, ctx)
		h := newHarness(db)
		w := newClassWorld(t, db, standardCounts, 2497)

		res, err := h.distribution.DistributeBulk(ctx, service.BulkRequest{
			Origin: w.central,
			Lines:  []service.BulkLine{{SupplyID: w.supply, TotalQuantity: 2497}},
		})
		require.NoError(t, err)
		assert.Equal(t, distribution.StrategyPerHospitalPercentage, res.Strategy)

		got := allocatedTo(res)
		assert.Equal(t, 37, got[w.byClass["Tipo 1"][0]])
		assert.Equal(t, 187, got[w.byClass["tipo2"][0]])
		assert.Equal(t, 149, got[w.byClass["hospital_tipo3"][0]])
		assert.Equal(t, 998, got[w.byClass["Hospital Tipo 4"][0]])
		assert.Equal(t, 2487, res.Allocated)
		assert.Equal(t, 10, res.Remainder)
		assert.Equal(t, 10, w.fx.StockQuantity(t, "central", w.lots[0], w.central.SiteID, w.origin))
	})

	t.Run("line larger than central stock aborts whole", func(t *testing.T) {
		db := suite.SetupStockSchema(t, ctx)
		h := newHarness(db)
		w := newClassWorld(t, db, standardCounts, 1500, 1000)

		res, err := h.distribution.DistributeBulk(ctx, service.BulkRequest{
			Origin:   w.central,
			Strategy: distribution.StrategyClassSplit,
			Lines:    []service.BulkLine{{SupplyID: w.supply, TotalQuantity: 3000}},
		})
		require.NoError(t, err)
		require.Len(t, res.Lines, 1)
		assert.Equal(t, "INSUFFICIENT_STOCK", res.Lines[0].ErrorCode)
		assert.Empty(t, res.Destinations)
		assert.Equal(t, 1, res.Failed())
		assert.Equal(t, 2500, w.fx.TotalStock(t, w.lots[0])+w.fx.TotalStock(t, w.lots[1]))
	})

	t.Run("lines for one hospital share a movement", func(t *testing.T) {
		db := suite.SetupStockSchema(t, ctx)
		h := newHarness(db)
		w := newClassWorld(t, db, map[string]int{"Hospital Tipo 4": 1}, 100)
		other := w.fx.Supply(t, "Guantes de latex")
		lot := w.fx.Lot(t, other, w.origin)
		w.fx.Stock(t, "central", lot, w.central.SiteID, w.origin, 100)

		res, err := h.distribution.DistributeBulk(ctx, service.BulkRequest{
			Origin:   w.central,
			Strategy: distribution.StrategyClassSplit,
			Lines: []service.BulkLine{
				{SupplyID: w.supply, TotalQuantity: 50},
				{SupplyName: "GUANTES DE LÁTEX", TotalQuantity: 10},
			},
		})
		require.NoError(t, err)
		require.Len(t, res.Destinations, 1)
		assert.Equal(t, 24, res.Destinations[0].AllocatedQuantity)

		detail, err := h.ledger.Get(ctx, res.Destinations[0].MovementID)
		require.NoError(t, err)
		assert.Len(t, detail.Lines, 2)
		assert.Equal(t, domain.StatePending, detail.Movement.State)
	})

	t.Run("proportional by lot", func(t *testing.T) {
		db := suite.SetupStockSchema(t, ctx)
		h := newHarness(db)
		w := newClassWorld(t, db, map[string]int{"Tipo 1": 1, "hospital_tipo3": 1}, 100)

		res, err := h.distribution.DistributeProportional(ctx, service.ProportionalRequest{
			Origin: w.central,
			LotIDs: w.lots,
		})
		require.NoError(t, err)

		got := allocatedTo(res)
		assert.Equal(t, 33, got[w.byClass["Tipo 1"][0]]) // 100 x 15/45
		assert.Equal(t, 66, got[w.byClass["hospital_tipo3"][0]])
		assert.Equal(t, 1, res.Remainder)
		assert.Equal(t, 1, w.fx.StockQuantity(t, "central", w.lots[0], w.central.SiteID, w.origin))
	})

	t.Run("every hospital of a class gets the full class share", func(t *testing.T) {
		db := suite.SetupStockSchema(t, ctx)
		h := newHarness(db)
		w := newClassWorld(t, db, map[string]int{"Tipo 1": 2, "hospital_tipo3": 1}, 100)

		res, err := h.distribution.DistributeProportional(ctx, service.ProportionalRequest{
			Origin: w.central,
			LotIDs: w.lots,
		})
		require.NoError(t, err)
		require.Len(t, res.Destinations, 3)
		require.Len(t, res.Lines, 1)
		assert.Equal(t, 132, res.Lines[0].Planned)
		assert.Zero(t, res.Remainder)

		got := allocatedTo(res)
		assert.Equal(t, 33, got[w.byClass["Tipo 1"][0]])
		assert.Equal(t, 33, got[w.byClass["Tipo 1"][1]])

		last := res.Destinations[2]
		assert.Equal(t, w.byClass["hospital_tipo3"][0], last.HospitalID)
		assert.Equal(t, "INSUFFICIENT_STOCK", last.ErrorCode)
		assert.Zero(t, last.MovementID)

		assert.Equal(t, 66, res.Allocated)
		assert.Equal(t, 34, w.fx.StockQuantity(t, "central", w.lots[0], w.central.SiteID, w.origin))
	})

	t.Run("hospital without primary warehouse fails alone", func(t *testing.T) {
		db := suite.SetupStockSchema(t, ctx)
		h := newHarness(db)
		w := newClassWorld(t, db, map[string]int{"Tipo 1": 1}, 100)
		bare := w.fx.Hospital(t, testutil.WithClassification("Tipo 1"))

		res, err := h.distribution.DistributeProportional(ctx, service.ProportionalRequest{
			Origin:      w.central,
			HospitalIDs: []int64{w.byClass["Tipo 1"][0], bare},
			LotIDs:      w.lots,
		})
		require.NoError(t, err)
		require.Len(t, res.Destinations, 2)

		for _, d := range res.Destinations {
			if d.HospitalID == bare {
				assert.Equal(t, "CONFIGURATION_MISSING", d.ErrorCode)
				assert.Zero(t, d.MovementID)
			} else {
				assert.Empty(t, d.Error)
				assert.Equal(t, 100, d.AllocatedQuantity)
			}
		}
		assert.Equal(t, 100, res.Allocated)
		assert.Equal(t, 0, w.fx.StockQuantity(t, "central", w.lots[0], w.central.SiteID, w.origin))
	})
}
