package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/medflow/medflow-stock/pkg/database"
)

// HospitalFixture represents test hospital data
type HospitalFixture struct {
	Name           string
	Classification string
	Active         bool
}

// LotFixture represents test lot data
type LotFixture struct {
	BatchNumber string
	ExpiryDate  *time.Time
	IntakeDate  *time.Time
}

// FixtureFactory inserts stock engine rows with sensible defaults
type FixtureFactory struct {
	db       *database.DB
	sequence int
}

// NewFixtureFactory creates a new fixture factory writing to db
func NewFixtureFactory(db *database.DB) *FixtureFactory {
	return &FixtureFactory{db: db}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

func (f *FixtureFactory) insert(t *testing.T, query string, args ...interface{}) int64 {
	t.Helper()
	var id int64
	if err := f.db.GetContext(context.Background(), &id, query, args...); err != nil {
		t.Fatalf("fixture insert failed: %v", err)
	}
	return id
}

// Hospital inserts an active hospital and returns its id
func (f *FixtureFactory) Hospital(t *testing.T, opts ...func(*HospitalFixture)) int64 {
	t.Helper()
	h := HospitalFixture{
		Name:           fmt.Sprintf("Hospital %d", f.nextSeq()),
		Classification: "Tipo 1",
		Active:         true,
	}
	for _, opt := range opts {
		opt(&h)
	}
	return f.insert(t, `INSERT INTO hospitals (name, classification, active) VALUES ($1, $2, $3) RETURNING id`,
		h.Name, h.Classification, h.Active)
}

// WithClassification sets the hospital classification label
func WithClassification(label string) func(*HospitalFixture) {
	return func(h *HospitalFixture) {
		h.Classification = label
	}
}

// Inactive marks the hospital inactive
func Inactive() func(*HospitalFixture) {
	return func(h *HospitalFixture) {
		h.Active = false
	}
}

// Site inserts a warehouse site of the given kind and returns its id
func (f *FixtureFactory) Site(t *testing.T, hospitalID int64, kind string) int64 {
	t.Helper()
	return f.insert(t, `INSERT INTO sites (hospital_id, name, warehouse_kind) VALUES ($1, $2, $3) RETURNING id`,
		hospitalID, fmt.Sprintf("%s site %d", kind, f.nextSeq()), kind)
}

// Supply inserts a catalog supply and returns its id
func (f *FixtureFactory) Supply(t *testing.T, name string) int64 {
	t.Helper()
	return f.insert(t, `INSERT INTO supplies (code, name) VALUES ($1, $2) RETURNING id`,
		fmt.Sprintf("SUP-%04d", f.nextSeq()), name)
}

// Lot inserts a lot of supplyID owned by hospitalID and returns its id
func (f *FixtureFactory) Lot(t *testing.T, supplyID, hospitalID int64, opts ...func(*LotFixture)) int64 {
	t.Helper()
	l := LotFixture{BatchNumber: fmt.Sprintf("B-%05d", f.nextSeq())}
	for _, opt := range opts {
		opt(&l)
	}
	return f.insert(t, `
		INSERT INTO lots (supply_id, batch_number, hospital_id, expiry_date, intake_date)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		supplyID, l.BatchNumber, hospitalID, l.ExpiryDate, l.IntakeDate)
}

// WithExpiry sets the lot expiry date
func WithExpiry(expiry time.Time) func(*LotFixture) {
	return func(l *LotFixture) {
		l.ExpiryDate = &expiry
	}
}

// WithBatchNumber sets the lot batch number
func WithBatchNumber(batch string) func(*LotFixture) {
	return func(l *LotFixture) {
		l.BatchNumber = batch
	}
}

// Stock sets the quantity of a lot in a warehouse of the given kind
func (f *FixtureFactory) Stock(t *testing.T, kind string, lotID, siteID, hospitalID int64, quantity int) {
	t.Helper()
	query := fmt.Sprintf(`
		INSERT INTO %s_stock (lot_id, site_id, hospital_id, quantity, active)
		VALUES ($1, $2, $3, $4, $4 > 0)
		ON CONFLICT (lot_id, site_id, hospital_id) DO UPDATE SET quantity = EXCLUDED.quantity`, kind)
	if _, err := f.db.ExecContext(context.Background(), query, lotID, siteID, hospitalID, quantity); err != nil {
		t.Fatalf("fixture stock failed: %v", err)
	}
}

// StockQuantity reads a stock row, returning 0 when it does not exist
func (f *FixtureFactory) StockQuantity(t *testing.T, kind string, lotID, siteID, hospitalID int64) int {
	t.Helper()
	var qty int
	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(quantity), 0) FROM %s_stock
		WHERE lot_id = $1 AND site_id = $2 AND hospital_id = $3`, kind)
	if err := f.db.GetContext(context.Background(), &qty, query, lotID, siteID, hospitalID); err != nil {
		t.Fatalf("fixture stock read failed: %v", err)
	}
	return qty
}

// TotalStock sums a lot over every warehouse table
func (f *FixtureFactory) TotalStock(t *testing.T, lotID int64) int {
	t.Helper()
	total := 0
	for _, table := range stockTables {
		var qty int
		query := fmt.Sprintf(`SELECT COALESCE(SUM(quantity), 0) FROM %s WHERE lot_id = $1`, table)
		if err := f.db.GetContext(context.Background(), &qty, query, lotID); err != nil {
			t.Fatalf("fixture stock read failed: %v", err)
		}
		total += qty
	}
	return total
}

// Percentages stores the hospital class percentages, e.g. "15.00"
func (f *FixtureFactory) Percentages(t *testing.T, class1, class2, class3, class4 string) {
	t.Helper()
	_, err := f.db.ExecContext(context.Background(), `
		INSERT INTO hospital_type_percentages (id, class1, class2, class3, class4)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			class1 = EXCLUDED.class1, class2 = EXCLUDED.class2,
			class3 = EXCLUDED.class3, class4 = EXCLUDED.class4`,
		class1, class2, class3, class4)
	if err != nil {
		t.Fatalf("fixture percentages failed: %v", err)
	}
}
