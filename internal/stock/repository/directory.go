package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
)

// DirectoryRepository reads hospitals, sites, supplies and the class
// percentages. This service never writes master data.
type DirectoryRepository struct {
	db *database.DB
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *database.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// GetHospital retrieves a hospital by ID
func (r *DirectoryRepository) GetHospital(ctx context.Context, id int64) (*domain.Hospital, error) {
	var h domain.Hospital
	err := r.db.GetContext(ctx, &h, `SELECT id, name, classification, active FROM hospitals WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("hospital")
		}
		return nil, err
	}
	return &h, nil
}

// ActiveHospitals lists the active hospitals among ids, ordered by id.
// An empty ids slice lists every active hospital.
func (r *DirectoryRepository) ActiveHospitals(ctx context.Context, ids []int64) ([]domain.Hospital, error) {
	hospitals := []domain.Hospital{}
	query := `SELECT id, name, classification, active FROM hospitals WHERE active`
	args := []interface{}{}
	if len(ids) > 0 {
		query += ` AND id = ANY($1)`
		args = append(args, pq.Array(ids))
	}
	query += ` ORDER BY id`

	if err := r.db.SelectContext(ctx, &hospitals, query, args...); err != nil {
		return nil, err
	}
	return hospitals, nil
}

// GetSite retrieves a site by ID
func (r *DirectoryRepository) GetSite(ctx context.Context, id int64) (*domain.Site, error) {
	var s domain.Site
	err := r.db.GetContext(ctx, &s, `SELECT id, hospital_id, name, warehouse_kind, active FROM sites WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("site")
		}
		return nil, err
	}
	return &s, nil
}

// SiteFor returns the lowest-id active site of a hospital operating kind.
// A hospital without one is a configuration gap, not a missing resource.
func (r *DirectoryRepository) SiteFor(ctx context.Context, hospitalID int64, kind domain.WarehouseKind) (*domain.Site, error) {
	var s domain.Site
	err := r.db.GetContext(ctx, &s, `
		SELECT id, hospital_id, name, warehouse_kind, active FROM sites
		WHERE hospital_id = $1 AND warehouse_kind = $2 AND active
		ORDER BY id
		LIMIT 1`, hospitalID, kind)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ConfigurationMissing(fmt.Sprintf("hospital %d has no %s warehouse", hospitalID, kind))
		}
		return nil, err
	}
	return &s, nil
}

// GetSupply retrieves a supply by ID
func (r *DirectoryRepository) GetSupply(ctx context.Context, id int64) (*domain.Supply, error) {
	var s domain.Supply
	if err := r.db.GetContext(ctx, &s, `SELECT id, code, name FROM supplies WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("supply")
		}
		return nil, err
	}
	return &s, nil
}

// FindSupply resolves a supply by exact code, or failing that by name
// ignoring case, accents and repeated spaces.
func (r *DirectoryRepository) FindSupply(ctx context.Context, code, name string) (*domain.Supply, error) {
	if code != "" {
		var s domain.Supply
		err := r.db.GetContext(ctx, &s, `SELECT id, code, name FROM supplies WHERE code = $1`, code)
		if err == nil {
			return &s, nil
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}

	want := domain.FoldText(name)
	if want == "" {
		return nil, errors.NotFound("supply")
	}

	supplies := []domain.Supply{}
	if err := r.db.SelectContext(ctx, &supplies, `SELECT id, code, name FROM supplies ORDER BY id`); err != nil {
		return nil, err
	}
	for i := range supplies {
		if domain.FoldText(supplies[i].Name) == want {
			return &supplies[i], nil
		}
	}
	return nil, errors.NotFound("supply")
}

// Percentages reads the singleton class percentage configuration
func (r *DirectoryRepository) Percentages(ctx context.Context) (*domain.Percentages, error) {
	var p domain.Percentages
	err := r.db.GetContext(ctx, &p, `SELECT class1, class2, class3, class4 FROM hospital_type_percentages WHERE id = 1`)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ConfigurationMissing("hospital type percentages are not configured")
		}
		return nil, err
	}
	return &p, nil
}
