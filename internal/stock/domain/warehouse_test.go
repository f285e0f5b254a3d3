package domain_test

import (
	"testing"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWarehouseKind(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.WarehouseKind
	}{
		{"central", domain.KindCentral},
		{" Primary ", domain.KindPrimary},
		{"support-services", domain.KindSupportServices},
		{"almacenCent", domain.KindCentral},
		{"almacenPrin", domain.KindPrimary},
		{"almacenFarm", domain.KindPharmacy},
		{"almacenPar", domain.KindParallel},
		{"almacenServApoyo", domain.KindSupportServices},
		{"almacenServAtenciones", domain.KindAttentionServices},
		{"almacenAus", domain.KindAUS},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := domain.ParseWarehouseKind(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWarehouseKind_Unknown(t *testing.T) {
	_, err := domain.ParseWarehouseKind("almacenMisterioso")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigurationMissing))
}

func TestWarehouseKind_TablesAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range domain.WarehouseKinds() {
		require.True(t, k.Valid())
		table := k.Table()
		assert.NotEmpty(t, table)
		assert.False(t, seen[table], "table %s reused", table)
		seen[table] = true
	}
	assert.False(t, domain.WarehouseKind("attic").Valid())
}

func TestWarehouseRef_Key(t *testing.T) {
	ref := domain.WarehouseRef{Kind: domain.KindPrimary, HospitalID: 3, SiteID: 8}
	assert.Equal(t, domain.StockKey{Kind: domain.KindPrimary, LotID: 5, SiteID: 8, HospitalID: 3}, ref.Key(5))
}
