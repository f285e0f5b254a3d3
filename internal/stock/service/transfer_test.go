package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/messaging"
	"github.com/medflow/medflow-stock/pkg/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stockRowColumns = []string{"id", "lot_id", "site_id", "hospital_id", "quantity", "active", "created_at", "updated_at"}

func TestTransferService_Transfer_Validation(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	h := newHarness(mockDB.Database())

	central := domain.WarehouseRef{Kind: domain.KindCentral, HospitalID: 1, SiteID: 2}
	primary := domain.WarehouseRef{Kind: domain.KindPrimary, HospitalID: 1, SiteID: 3}

	tests := []struct {
		name    string
		req     service.TransferRequest
		wantErr error
	}{
		{
			name:    "zero quantity",
			req:     service.TransferRequest{LotID: 7, From: central, To: primary},
			wantErr: errors.ErrValidation,
		},
		{
			name:    "unknown kind",
			req:     service.TransferRequest{LotID: 7, From: domain.WarehouseRef{Kind: "basement", HospitalID: 1, SiteID: 2}, To: primary, Quantity: 1},
			wantErr: errors.ErrConfigurationMissing,
		},
		{
			name:    "same warehouse",
			req:     service.TransferRequest{LotID: 7, From: central, To: central, Quantity: 1},
			wantErr: errors.ErrBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.transfers.Transfer(context.Background(), nil, tt.req)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
	mockDB.ExpectationsWereMet(t)
}

func TestTransferService_DirectTransfer_InsufficientRollsBack(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	h := newHarness(mockDB.Database())
	now := time.Now()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM central_stock").
		WillReturnRows(testutil.MockRows(stockRowColumns...).AddRow(10, 7, 2, 1, 3, true, now, now))
	mockDB.ExpectRollback()

	_, err := h.transfers.DirectTransfer(context.Background(), service.DirectTransferRequest{
		From:  domain.WarehouseRef{Kind: domain.KindCentral, HospitalID: 1, SiteID: 2},
		To:    domain.WarehouseRef{Kind: domain.KindPrimary, HospitalID: 1, SiteID: 3},
		Items: []domain.GroupItem{{LotID: 7, Quantity: 5}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.InsufficientStock.WithLabelValues("central")))
	h.publisher.AssertNoEventsPublished(t)
	mockDB.ExpectationsWereMet(t)
}

func TestTransferService_Integration(t *testing.T) {
	skipWithoutDatabase(t)
	ctx := context.Background()

	t.Run("transfer 40 then 70 out of 100", func(t *testing.T) {
		db := suite.SetupStockSchema(t, ctx)
		h := newHarness(db)
		n := newNetwork(t, db)
		lot := n.lotWithStock(t, n.central, 100)

		transfer := func(qty int) error {
			return db.Transaction(ctx, func(tx *sqlx.Tx) error {
				return h.transfers.Transfer(ctx, tx, service.TransferRequest{
					LotID: lot, From: n.central, To: n.primary, Quantity: qty,
				})
			})
		}

		require.NoError(t, transfer(40))
		assert.Equal(t, 60, n.quantity(t, n.central, lot))
		assert.Equal(t, 40, n.quantity(t, n.primary, lot))

		err := transfer(70)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInsufficientStock))
		assert.Equal(t, 60, n.quantity(t, n.central, lot))
		assert.Equal(t, 40, n.quantity(t, n.primary, lot))
		assert.Equal(t, 100, n.fx.TotalStock(t, lot))
	})

	t.Run("direct transfer records a received movement", func(t *testing.T) {
		db := suite.SetupStockSchema(t, ctx)
		h := newHarness(db)
		n := newNetwork(t, db)
		a := n.lotWithStock(t, n.central, 30)
		b := n.lotWithStock(t, n.central, 10)

		detail, err := h.transfers.DirectTransfer(ctx, service.DirectTransferRequest{
			From:   n.central,
			To:     n.primary,
			Items:  []domain.GroupItem{{LotID: a, Quantity: 5}, {LotID: b, Quantity: 10}, {LotID: a, Quantity: 5}},
			Notes:  "restock ward 3",
			UserID: 11,
		})
		require.NoError(t, err)

		m := detail.Movement
		assert.Equal(t, domain.StateReceived, m.State)
		assert.Equal(t, 20, m.OutboundTotal)
		assert.Equal(t, 20, m.InboundTotal)
		assert.Equal(t, "cod001", m.GroupCode)
		assert.Equal(t, "restock ward 3", m.Notes)
		require.Len(t, detail.Lines, 2)
		for _, l := range detail.Lines {
			assert.Equal(t, domain.LineReceived, l.State)
			assert.Equal(t, l.OutboundQuantity, l.InboundQuantity)
		}

		assert.Equal(t, 20, n.quantity(t, n.central, a))
		assert.Equal(t, 10, n.quantity(t, n.primary, a))
		assert.Equal(t, 0, n.quantity(t, n.central, b))
		assert.Equal(t, 10, n.quantity(t, n.primary, b))

		h.publisher.AssertEventPublished(t, messaging.EventMovementCreated)
		h.publisher.AssertEventPublished(t, messaging.EventMovementReceived)
	})
}
