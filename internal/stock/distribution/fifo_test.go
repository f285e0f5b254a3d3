package distribution_test

import (
	"testing"
	"time"

	"github.com/medflow/medflow-stock/internal/stock/distribution"
	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) *time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &d
}

func sources() []domain.StockSource {
	return []domain.StockSource{
		{LotID: 4, Quantity: 10, ExpiryDate: nil},
		{LotID: 3, Quantity: 5, ExpiryDate: date("2027-06-01")},
		{LotID: 2, Quantity: 8, ExpiryDate: date("2026-12-01")},
		{LotID: 1, Quantity: 8, ExpiryDate: date("2026-12-01")},
		{LotID: 9, Quantity: 0, ExpiryDate: date("2025-01-01")},
	}
}

func picked(picks []distribution.Pick) int {
	n := 0
	for _, p := range picks {
		n += p.Quantity
	}
	return n
}

func TestSortFIFO(t *testing.T) {
	s := sources()
	distribution.SortFIFO(s)

	var ids []int64
	for _, src := range s {
		ids = append(ids, src.LotID)
	}
	assert.Equal(t, []int64{9, 1, 2, 3, 4}, ids)
}

func TestPool_TakeSplitsAcrossLots(t *testing.T) {
	src := sources()
	picks, err := distribution.NewPool(domain.KindCentral, 77, src).Take(20)
	require.NoError(t, err)

	require.Len(t, picks, 3)
	assert.Equal(t, int64(1), picks[0].LotID)
	assert.Equal(t, 8, picks[0].Quantity)
	assert.Equal(t, int64(2), picks[1].LotID)
	assert.Equal(t, 8, picks[1].Quantity)
	assert.Equal(t, int64(3), picks[2].LotID)
	assert.Equal(t, 4, picks[2].Quantity)
	assert.Equal(t, 20, picked(picks))

	assert.Equal(t, 10, src[0].Quantity, "caller's slice is left untouched")
}

func TestPool_TakeInsufficient(t *testing.T) {
	_, err := distribution.NewPool(domain.KindCentral, 77, sources()).Take(32)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))
}

func TestPool_NeverHandsOutUnitsTwice(t *testing.T) {
	pool := distribution.NewPool(domain.KindAUS, 77, sources())
	assert.Equal(t, 31, pool.Available())

	first, err := pool.Take(10)
	require.NoError(t, err)
	second, err := pool.Take(10)
	require.NoError(t, err)

	assert.Equal(t, []distribution.Pick{
		{LotID: 1, Quantity: 8, ExpiryDate: date("2026-12-01")},
		{LotID: 2, Quantity: 2, ExpiryDate: date("2026-12-01")},
	}, first)
	assert.Equal(t, int64(2), second[0].LotID)
	assert.Equal(t, 6, second[0].Quantity)
	assert.Equal(t, 11, pool.Available())

	_, err = pool.Take(12)
	assert.Error(t, err)
	assert.Equal(t, 11, pool.Available(), "a failed take leaves the pool as it was")
}

func TestAllocateFIFO(t *testing.T) {
	pool := distribution.NewPool(domain.KindCentral, 77, sources())
	allocs := []distribution.Allocation{
		{HospitalID: 100, Quantity: 9},
		{HospitalID: 200, Quantity: 12},
	}

	picks, err := distribution.AllocateFIFO(pool, allocs)
	require.NoError(t, err)

	assert.Equal(t, 9, picked(picks[100]))
	assert.Equal(t, 12, picked(picks[200]))
	assert.Equal(t, 10, pool.Available())

	items := distribution.GroupItems(picks[100])
	assert.Equal(t, []domain.GroupItem{{LotID: 1, Quantity: 8}, {LotID: 2, Quantity: 1}}, items)
}

func TestAllocateFIFO_AbortsWholePlan(t *testing.T) {
	pool := distribution.NewPool(domain.KindCentral, 77, sources())

	_, err := distribution.AllocateFIFO(pool, []distribution.Allocation{
		{HospitalID: 100, Quantity: 20},
		{HospitalID: 200, Quantity: 20},
	})

	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))
	assert.Equal(t, 31, pool.Available())
}
