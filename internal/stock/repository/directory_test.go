package repository_test

import (
	"context"
	"testing"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/repository"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryRepository_Percentages(t *testing.T) {
	t.Run("missing row", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		repo := repository.NewDirectoryRepository(mockDB.Database())

		mockDB.ExpectQuery("FROM hospital_type_percentages").
			WillReturnRows(testutil.MockRows("class1", "class2", "class3", "class4"))

		_, err := repo.Percentages(context.Background())
		assert.True(t, errors.Is(err, errors.ErrConfigurationMissing))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("decimal columns", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		repo := repository.NewDirectoryRepository(mockDB.Database())

		mockDB.ExpectQuery("FROM hospital_type_percentages").
			WillReturnRows(testutil.MockRows("class1", "class2", "class3", "class4").
				AddRow("15.00", "15.00", "30.00", "40.00"))

		p, err := repo.Percentages(context.Background())
		require.NoError(t, err)
		assert.True(t, p.Class4.Equal(decimal.NewFromInt(40)))
		assert.True(t, p.Total().Equal(decimal.NewFromInt(100)))
		mockDB.ExpectationsWereMet(t)
	})
}

func TestDirectoryRepository_FindSupply(t *testing.T) {
	supplyColumns := []string{"id", "code", "name"}

	t.Run("by code", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		repo := repository.NewDirectoryRepository(mockDB.Database())

		mockDB.ExpectQuery("FROM supplies WHERE code = $1").
			WithArgs("JER-5").
			WillReturnRows(testutil.MockRows(supplyColumns...).AddRow(3, "JER-5", "Jeringa 5ml"))

		s, err := repo.FindSupply(context.Background(), "JER-5", "")
		require.NoError(t, err)
		assert.Equal(t, int64(3), s.ID)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("falls back to folded name", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		repo := repository.NewDirectoryRepository(mockDB.Database())

		mockDB.ExpectQuery("FROM supplies WHERE code = $1").
			WillReturnRows(testutil.MockRows(supplyColumns...))
		mockDB.ExpectQuery("FROM supplies ORDER BY id").
			WillReturnRows(testutil.MockRows(supplyColumns...).
				AddRow(1, "GAS-1", "Gasa estéril").
				AddRow(2, "JER-D", "Jeringa Desechable"))

		s, err := repo.FindSupply(context.Background(), "UNKNOWN", "  JERINGA  desechablé ")
		require.NoError(t, err)
		assert.Equal(t, int64(2), s.ID)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("no match", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		repo := repository.NewDirectoryRepository(mockDB.Database())

		mockDB.ExpectQuery("FROM supplies ORDER BY id").
			WillReturnRows(testutil.MockRows(supplyColumns...).AddRow(1, "GAS-1", "Gasa"))

		_, err := repo.FindSupply(context.Background(), "", "Vendas")
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}

func TestDirectoryRepository_Integration(t *testing.T) {
	skipWithoutDatabase(t)
	ctx := context.Background()
	db := suite.SetupStockSchema(t, ctx)
	fx := testutil.NewFixtureFactory(db)
	repo := repository.NewDirectoryRepository(db)

	h1 := fx.Hospital(t, testutil.WithClassification("Hospital Tipo 1"))
	h2 := fx.Hospital(t, testutil.WithClassification("tipo2"))
	h3 := fx.Hospital(t, testutil.Inactive())
	primary := fx.Site(t, h1, "primary")

	hospitals, err := repo.ActiveHospitals(ctx, []int64{h1, h2, h3})
	require.NoError(t, err)
	require.Len(t, hospitals, 2)
	class, ok := hospitals[0].Class()
	require.True(t, ok)
	assert.Equal(t, domain.Class1, class)

	site, err := repo.SiteFor(ctx, h1, domain.KindPrimary)
	require.NoError(t, err)
	assert.Equal(t, primary, site.ID)

	_, err = repo.SiteFor(ctx, h2, domain.KindPrimary)
	assert.True(t, errors.Is(err, errors.ErrConfigurationMissing))

	fx.Percentages(t, "15.00", "15.00", "30.00", "40.00")
	p, err := repo.Percentages(ctx)
	require.NoError(t, err)
	assert.Equal(t, "30", p.Class3.String())
}
