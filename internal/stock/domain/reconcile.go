package domain

import (
	"fmt"

	"github.com/medflow/medflow-stock/pkg/errors"
)

// Discrepancy notes written at receiving
const (
	NoteQuantityMismatch = "received quantity differs from dispatched quantity"
	NoteMissingLot       = "lot not received"
	NoteUnexpectedLot    = "lot not part of the shipment"
)

// ReceivedLine is one lot the receiver counted
type ReceivedLine struct {
	LotID    int64 `json:"lot_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"gte=0"`
}

// LineOutcome is the receiving result for one expected line
type LineOutcome struct {
	ItemID      int64
	LotID       int64
	Expected    int
	Received    int
	Reported    bool
	Discrepancy bool
}

// ReconcilePlan is everything receiving must write, computed before any write
type ReconcilePlan struct {
	Lines []LineOutcome
	// Extras are reported lots with no line in the group
	Extras []ReceivedLine
	// Credits are the quantities to add to the destination warehouse
	Credits          []ReceivedLine
	Discrepancies    []Discrepancy
	ReportedTotal    int
	DiscrepancyTotal bool
}

// Reconcile matches the expected lines of a group against what arrived.
// Every reported lot is credited at the reported quantity, matched or not.
// Missing lots are recorded as received 0.
func Reconcile(code string, lines []LotGroupItem, received []ReceivedLine, outboundTotal int) (*ReconcilePlan, error) {
	if len(lines) == 0 {
		return nil, errors.InconsistentBatch(code, "no lines")
	}

	expected := make(map[int64]int, len(lines))
	for _, l := range lines {
		if l.Status != LineActive {
			return nil, errors.InconsistentBatch(code, fmt.Sprintf("line for lot %d is inactive", l.LotID))
		}
		if _, dup := expected[l.LotID]; dup {
			return nil, errors.InconsistentBatch(code, fmt.Sprintf("lot %d appears twice", l.LotID))
		}
		expected[l.LotID] = l.OutboundQuantity
	}

	reported := make(map[int64]int, len(received))
	order := make([]int64, 0, len(received))
	for _, r := range received {
		if r.Quantity < 0 {
			return nil, errors.Validation(map[string]string{
				fmt.Sprintf("lot %d", r.LotID): "must be greater than or equal to 0",
			})
		}
		if _, seen := reported[r.LotID]; !seen {
			order = append(order, r.LotID)
		}
		reported[r.LotID] += r.Quantity
	}

	plan := &ReconcilePlan{}
	for _, l := range lines {
		got, ok := reported[l.LotID]
		out := LineOutcome{
			ItemID:   l.ID,
			LotID:    l.LotID,
			Expected: l.OutboundQuantity,
			Received: got,
			Reported: ok,
		}
		switch {
		case !ok:
			out.Discrepancy = true
			plan.Discrepancies = append(plan.Discrepancies, Discrepancy{
				GroupCode: code, LotID: l.LotID,
				ExpectedQuantity: l.OutboundQuantity, ReceivedQuantity: 0,
				Note: NoteMissingLot,
			})
		case got != l.OutboundQuantity:
			out.Discrepancy = true
			plan.Discrepancies = append(plan.Discrepancies, Discrepancy{
				GroupCode: code, LotID: l.LotID,
				ExpectedQuantity: l.OutboundQuantity, ReceivedQuantity: got,
				Note: NoteQuantityMismatch,
			})
		}
		plan.Lines = append(plan.Lines, out)
	}

	for _, lotID := range order {
		qty := reported[lotID]
		plan.ReportedTotal += qty
		if qty > 0 {
			plan.Credits = append(plan.Credits, ReceivedLine{LotID: lotID, Quantity: qty})
		}
		if _, ok := expected[lotID]; ok || qty == 0 {
			continue
		}
		plan.Extras = append(plan.Extras, ReceivedLine{LotID: lotID, Quantity: qty})
		plan.Discrepancies = append(plan.Discrepancies, Discrepancy{
			GroupCode: code, LotID: lotID,
			ExpectedQuantity: 0, ReceivedQuantity: qty,
			Note: NoteUnexpectedLot,
		})
	}

	plan.DiscrepancyTotal = plan.ReportedTotal != outboundTotal
	return plan, nil
}

// HasDiscrepancies reports whether any line or extra lot mismatched
func (p *ReconcilePlan) HasDiscrepancies() bool {
	return len(p.Discrepancies) > 0
}
