package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntakeService_Validation(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	h := newHarness(mockDB.Database())
	to := domain.WarehouseRef{Kind: domain.KindCentral, HospitalID: 1, SiteID: 2}

	tests := []struct {
		name  string
		lines []service.IntakeLine
	}{
		{"no lines", nil},
		{"missing batch", []service.IntakeLine{{SupplyID: 3, Quantity: 5}}},
		{"zero quantity", []service.IntakeLine{{SupplyID: 3, BatchNumber: "B-1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.intake.Intake(context.Background(), service.IntakeRequest{To: to, Lines: tt.lines})
			require.Error(t, err)
			var appErr *errors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, 400, appErr.StatusCode)
		})
	}
	mockDB.ExpectationsWereMet(t)
}

func TestIntakeService_Integration(t *testing.T) {
	skipWithoutDatabase(t)
	ctx := context.Background()
	expiry := time.Date(2028, 1, 31, 0, 0, 0, 0, time.UTC)

	t.Run("confirmed intake credits the warehouse", func(t *testing.T) {
		db := suite.SetupStockSchema(t, ctx)
		h := newHarness(db)
		n := newNetwork(t, db)

		detail, err := h.intake.Intake(ctx, service.IntakeRequest{
			To: n.central,
			Lines: []service.IntakeLine{
				{SupplyID: n.supply, BatchNumber: "L-100", ExpiryDate: &expiry, Quantity: 80},
				{SupplyID: n.supply, BatchNumber: "L-101", Quantity: 20},
			},
			Notes:  "supplier invoice 4411",
			UserID: 3,
		})
		require.NoError(t, err)

		m := detail.Movement
		assert.Equal(t, domain.MovementEntry, m.Kind)
		assert.Nil(t, m.Origin())
		assert.Equal(t, domain.StateReceived, m.State)
		assert.Equal(t, 100, m.InboundTotal)
		require.Len(t, detail.Lines, 2)
		assert.Equal(t, 80, n.quantity(t, n.central, detail.Lines[0].LotID))
		assert.Equal(t, 20, n.quantity(t, n.central, detail.Lines[1].LotID))

		lot, err := h.stores.Lots.GetByID(ctx, db, detail.Lines[0].LotID)
		require.NoError(t, err)
		assert.Equal(t, "L-100", lot.BatchNumber)
		require.NotNil(t, lot.ExpiryDate)
		assert.True(t, expiry.Equal(*lot.ExpiryDate))
	})

	t.Run("same batch twice reuses the lot", func(t *testing.T) {
		db := suite.SetupStockSchema(t, ctx)
		h := newHarness(db)
		n := newNetwork(t, db)

		var lots []int64
		for i := 0; i < 2; i++ {
			detail, err := h.intake.Intake(ctx, service.IntakeRequest{
				To:    n.central,
				Lines: []service.IntakeLine{{SupplyID: n.supply, BatchNumber: "L-7", Quantity: 5}},
			})
			require.NoError(t, err)
			lots = append(lots, detail.Lines[0].LotID)
		}
		assert.Equal(t, lots[0], lots[1])
		assert.Equal(t, 10, n.quantity(t, n.central, lots[0]))
	})

	t.Run("unconfirmed intake waits for receiving", func(t *testing.T) {
		db := suite.SetupStockSchema(t, ctx)
		h := newHarness(db)
		n := newNetwork(t, db)

		confirm := false
		detail, err := h.intake.Intake(ctx, service.IntakeRequest{
			To:      n.primary,
			Lines:   []service.IntakeLine{{SupplyID: n.supply, BatchNumber: "L-9", Quantity: 40}},
			Confirm: &confirm,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatePending, detail.Movement.State)
		lot := detail.Lines[0].LotID
		assert.Equal(t, 0, n.quantity(t, n.primary, lot))

		res, err := h.receiving.Receive(ctx, service.ReceiveRequest{
			MovementID: detail.Movement.ID,
			Lines:      []domain.ReceivedLine{{LotID: lot, Quantity: 40}},
		})
		require.NoError(t, err)
		assert.False(t, res.WithDiscrepancies)
		assert.Equal(t, 40, n.quantity(t, n.primary, lot))
	})
}
