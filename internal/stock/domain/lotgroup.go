package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/medflow/medflow-stock/pkg/errors"
)

const groupCodePrefix = "cod"

// LineStatus says whether a lot-group line still counts
type LineStatus string

const (
	LineActive   LineStatus = "active"
	LineInactive LineStatus = "inactive"
)

// LineState is the courier-facing sub-state of a line
type LineState string

const (
	LinePending   LineState = "pending"
	LineDelivered LineState = "delivered"
	LineReceived  LineState = "received"
)

// LotGroupItem is one lot/quantity line travelling under a group code
type LotGroupItem struct {
	ID               int64      `db:"id" json:"id"`
	Code             string     `db:"code" json:"code"`
	LotID            int64      `db:"lot_id" json:"lot_id"`
	OutboundQuantity int        `db:"outbound_quantity" json:"outbound_quantity"`
	InboundQuantity  int        `db:"inbound_quantity" json:"inbound_quantity"`
	Discrepancy      bool       `db:"discrepancy" json:"discrepancy"`
	Status           LineStatus `db:"status" json:"status"`
	State            LineState  `db:"state" json:"state"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// GroupItem is a requested line before it is stored
type GroupItem struct {
	LotID    int64 `json:"lot_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,gt=0"`
}

// FormatGroupCode renders a sequence number, e.g. 7 -> cod007
func FormatGroupCode(seq int) string {
	return fmt.Sprintf("%s%03d", groupCodePrefix, seq)
}

// ParseGroupCode extracts the sequence number from a code
func ParseGroupCode(code string) (int, bool) {
	digits, ok := strings.CutPrefix(code, groupCodePrefix)
	if !ok || digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// MergeGroupItems validates the lines of a new group and sums repeated lots,
// keeping first-seen order
func MergeGroupItems(items []GroupItem) ([]GroupItem, error) {
	if len(items) == 0 {
		return nil, errors.BadRequest("a lot group needs at least one item")
	}

	index := make(map[int64]int, len(items))
	merged := make([]GroupItem, 0, len(items))
	for i, it := range items {
		if it.LotID <= 0 {
			return nil, errors.Validation(map[string]string{
				fmt.Sprintf("items[%d].lot_id", i): "must be greater than 0",
			})
		}
		if it.Quantity <= 0 {
			return nil, errors.Validation(map[string]string{
				fmt.Sprintf("items[%d].quantity", i): "must be greater than 0",
			})
		}
		if at, seen := index[it.LotID]; seen {
			merged[at].Quantity += it.Quantity
			continue
		}
		index[it.LotID] = len(merged)
		merged = append(merged, it)
	}
	return merged, nil
}

// TotalQuantity sums the quantities of items
func TotalQuantity(items []GroupItem) int {
	total := 0
	for _, it := range items {
		total += it.Quantity
	}
	return total
}
