// Package domain holds the plain data structures of the stock engine and the
// rules that do not need a database: warehouse kinds, movement states, lot
// group codes and receiving reconciliation.
package domain

import (
	"strings"
	"time"

	"github.com/medflow/medflow-stock/pkg/errors"
)

// WarehouseKind is the closed set of stock classifications. Each kind is
// backed by its own stock table.
type WarehouseKind string

const (
	KindCentral           WarehouseKind = "central"
	KindPrimary           WarehouseKind = "primary"
	KindPharmacy          WarehouseKind = "pharmacy"
	KindParallel          WarehouseKind = "parallel"
	KindSupportServices   WarehouseKind = "support_services"
	KindAttentionServices WarehouseKind = "attention_services"
	KindAUS               WarehouseKind = "aus"
)

var warehouseTables = map[WarehouseKind]string{
	KindCentral:           "central_stock",
	KindPrimary:           "primary_stock",
	KindPharmacy:          "pharmacy_stock",
	KindParallel:          "parallel_stock",
	KindSupportServices:   "support_services_stock",
	KindAttentionServices: "attention_services_stock",
	KindAUS:               "aus_stock",
}

// Tags still sent by older clients and stored on legacy site rows.
var legacyKindTags = map[string]WarehouseKind{
	"almacencent":           KindCentral,
	"almacenprin":           KindPrimary,
	"almacenfarm":           KindPharmacy,
	"almacenpar":            KindParallel,
	"almacenservapoyo":      KindSupportServices,
	"almacenservatenciones": KindAttentionServices,
	"almacenaus":            KindAUS,
}

// ParseWarehouseKind resolves a kind tag or legacy alias.
// Unknown tags are a ConfigurationMissing error.
func ParseWarehouseKind(raw string) (WarehouseKind, error) {
	tag := strings.ToLower(strings.TrimSpace(raw))
	tag = strings.ReplaceAll(tag, "-", "_")

	if k := WarehouseKind(tag); k.Valid() {
		return k, nil
	}
	if k, ok := legacyKindTags[tag]; ok {
		return k, nil
	}
	return "", errors.ConfigurationMissing("unsupported warehouse kind " + raw)
}

// Valid reports whether k is one of the known kinds
func (k WarehouseKind) Valid() bool {
	_, ok := warehouseTables[k]
	return ok
}

// Table returns the stock table for the kind. Callers must validate first.
func (k WarehouseKind) Table() string {
	return warehouseTables[k]
}

func (k WarehouseKind) String() string {
	return string(k)
}

// WarehouseKinds lists every kind in a stable order
func WarehouseKinds() []WarehouseKind {
	return []WarehouseKind{
		KindCentral, KindPrimary, KindPharmacy, KindParallel,
		KindSupportServices, KindAttentionServices, KindAUS,
	}
}

// WarehouseRef locates one warehouse: a kind operated by a site of a hospital.
type WarehouseRef struct {
	Kind       WarehouseKind `json:"warehouse_kind"`
	HospitalID int64         `json:"hospital_id"`
	SiteID     int64         `json:"site_id"`
}

// Key addresses the stock row of lotID in this warehouse
func (w WarehouseRef) Key(lotID int64) StockKey {
	return StockKey{Kind: w.Kind, LotID: lotID, SiteID: w.SiteID, HospitalID: w.HospitalID}
}

// SameHospital reports whether both refs belong to the same hospital
func (w WarehouseRef) SameHospital(other WarehouseRef) bool {
	return w.HospitalID == other.HospitalID
}

// StockKey identifies a WarehouseStockRow
type StockKey struct {
	Kind       WarehouseKind
	LotID      int64
	SiteID     int64
	HospitalID int64
}

// StockRow is one (lot, site, hospital) quantity in a warehouse kind.
// Active always equals Quantity > 0.
type StockRow struct {
	ID         int64     `db:"id" json:"id"`
	LotID      int64     `db:"lot_id" json:"lot_id"`
	SiteID     int64     `db:"site_id" json:"site_id"`
	HospitalID int64     `db:"hospital_id" json:"hospital_id"`
	Quantity   int       `db:"quantity" json:"quantity"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// StockView is a stock row joined with its lot and supply, for listings.
type StockView struct {
	StockRow
	SupplyID    int64      `db:"supply_id" json:"supply_id"`
	SupplyName  string     `db:"supply_name" json:"supply_name"`
	BatchNumber string     `db:"batch_number" json:"batch_number"`
	ExpiryDate  *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
}

// StockSource is a positive stock row offered to FIFO selection.
type StockSource struct {
	LotID       int64      `db:"lot_id" json:"lot_id"`
	SupplyID    int64      `db:"supply_id" json:"supply_id"`
	BatchNumber string     `db:"batch_number" json:"batch_number"`
	ExpiryDate  *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	Quantity    int        `db:"quantity" json:"quantity"`
}

// Lot is a batch of one supply owned by a hospital.
type Lot struct {
	ID          int64      `db:"id" json:"id"`
	SupplyID    int64      `db:"supply_id" json:"supply_id"`
	BatchNumber string     `db:"batch_number" json:"batch_number"`
	HospitalID  int64      `db:"hospital_id" json:"hospital_id"`
	ExpiryDate  *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	IntakeDate  *time.Time `db:"intake_date" json:"intake_date,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
