package domain_test

import (
	"testing"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(id, lotID int64, qty int) domain.LotGroupItem {
	return domain.LotGroupItem{
		ID: id, Code: "cod010", LotID: lotID, OutboundQuantity: qty,
		Status: domain.LineActive, State: domain.LineDelivered,
	}
}

func TestReconcile_ShortDelivery(t *testing.T) {
	plan, err := domain.Reconcile("cod010",
		[]domain.LotGroupItem{line(1, 7, 50)},
		[]domain.ReceivedLine{{LotID: 7, Quantity: 30}},
		50)
	require.NoError(t, err)

	assert.True(t, plan.DiscrepancyTotal)
	assert.Equal(t, 30, plan.ReportedTotal)
	require.Len(t, plan.Discrepancies, 1)
	assert.Equal(t, 50, plan.Discrepancies[0].ExpectedQuantity)
	assert.Equal(t, 30, plan.Discrepancies[0].ReceivedQuantity)
	assert.Equal(t, []domain.ReceivedLine{{LotID: 7, Quantity: 30}}, plan.Credits)
	assert.True(t, plan.Lines[0].Discrepancy)
}

func TestReconcile_ExactMatch(t *testing.T) {
	plan, err := domain.Reconcile("cod010",
		[]domain.LotGroupItem{line(1, 7, 50), line(2, 8, 10)},
		[]domain.ReceivedLine{{LotID: 8, Quantity: 10}, {LotID: 7, Quantity: 50}},
		60)
	require.NoError(t, err)

	assert.False(t, plan.DiscrepancyTotal)
	assert.False(t, plan.HasDiscrepancies())
	assert.Empty(t, plan.Extras)
	for _, l := range plan.Lines {
		assert.True(t, l.Reported)
		assert.False(t, l.Discrepancy)
	}
}

func TestReconcile_MissingAndExtraLots(t *testing.T) {
	plan, err := domain.Reconcile("cod010",
		[]domain.LotGroupItem{line(1, 7, 50), line(2, 8, 10)},
		[]domain.ReceivedLine{{LotID: 7, Quantity: 50}, {LotID: 99, Quantity: 4}},
		60)
	require.NoError(t, err)

	require.Len(t, plan.Discrepancies, 2)
	missing := plan.Discrepancies[0]
	assert.Equal(t, int64(8), missing.LotID)
	assert.Equal(t, 10, missing.ExpectedQuantity)
	assert.Equal(t, 0, missing.ReceivedQuantity)
	assert.Equal(t, domain.NoteMissingLot, missing.Note)

	extra := plan.Discrepancies[1]
	assert.Equal(t, int64(99), extra.LotID)
	assert.Equal(t, 0, extra.ExpectedQuantity)
	assert.Equal(t, 4, extra.ReceivedQuantity)

	assert.Equal(t, []domain.ReceivedLine{{LotID: 99, Quantity: 4}}, plan.Extras)
	assert.Equal(t, 54, plan.ReportedTotal)
	assert.True(t, plan.DiscrepancyTotal)
	assert.False(t, plan.Lines[1].Reported)
}

func TestReconcile_EveryMissingLineYieldsOneRecord(t *testing.T) {
	lines := []domain.LotGroupItem{line(1, 1, 5), line(2, 2, 5), line(3, 3, 5)}
	plan, err := domain.Reconcile("cod010", lines, nil, 15)
	require.NoError(t, err)

	assert.Len(t, plan.Discrepancies, 3)
	assert.Empty(t, plan.Credits)
	assert.Equal(t, 0, plan.ReportedTotal)
}

func TestReconcile_DuplicateReportsAreSummed(t *testing.T) {
	plan, err := domain.Reconcile("cod010",
		[]domain.LotGroupItem{line(1, 7, 50)},
		[]domain.ReceivedLine{{LotID: 7, Quantity: 20}, {LotID: 7, Quantity: 30}},
		50)
	require.NoError(t, err)

	assert.False(t, plan.HasDiscrepancies())
	assert.Equal(t, []domain.ReceivedLine{{LotID: 7, Quantity: 50}}, plan.Credits)
}

func TestReconcile_InactiveLine(t *testing.T) {
	inactive := line(1, 7, 50)
	inactive.Status = domain.LineInactive

	_, err := domain.Reconcile("cod010", []domain.LotGroupItem{inactive}, nil, 50)
	assert.True(t, errors.Is(err, errors.ErrInconsistentBatch))

	_, err = domain.Reconcile("cod010", nil, nil, 0)
	assert.True(t, errors.Is(err, errors.ErrInconsistentBatch))
}

func TestReconcile_NegativeQuantity(t *testing.T) {
	_, err := domain.Reconcile("cod010",
		[]domain.LotGroupItem{line(1, 7, 50)},
		[]domain.ReceivedLine{{LotID: 7, Quantity: -1}},
		50)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
