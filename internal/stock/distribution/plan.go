// Package distribution computes distribution plans. Everything here is pure:
// no I/O, no locks. Quantities are always truncated, never rounded, and
// whatever truncation leaves over is reported back rather than assigned.
package distribution

import (
	"sort"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/shopspring/decimal"
)

// Strategy names accepted by the bulk planner
const (
	StrategyPerHospitalPercentage = "per_hospital_percentage"
	StrategyClassSplit            = "class_split"
	StrategyProportional          = "proportional"
)

var hundred = decimal.NewFromInt(100)

// Target is a destination hospital with its normalized class
type Target struct {
	HospitalID int64               `json:"hospital_id"`
	Class      domain.HospitalClass `json:"class"`
}

// Allocation is the quantity planned for one hospital
type Allocation struct {
	HospitalID int64               `json:"hospital_id"`
	Class      domain.HospitalClass `json:"class"`
	Quantity   int                  `json:"quantity"`
}

// Targets keeps the active hospitals that carry a recognizable class.
// The ids of the others are returned as skipped.
func Targets(hospitals []domain.Hospital) (targets []Target, skipped []int64) {
	for _, h := range hospitals {
		class, ok := h.Class()
		if !h.Active || !ok {
			skipped = append(skipped, h.ID)
			continue
		}
		targets = append(targets, Target{HospitalID: h.ID, Class: class})
	}
	return targets, skipped
}

// ValidatePercentages rejects negative shares and configurations above 100%
func ValidatePercentages(pct domain.Percentages) error {
	for _, c := range domain.HospitalClasses() {
		if pct.For(c).IsNegative() {
			return errors.ConfigurationMissing("negative percentage for " + string(c))
		}
	}
	if pct.Total().GreaterThan(hundred) {
		return errors.ConfigurationMissing("hospital type percentages add up to more than 100")
	}
	if pct.Total().IsZero() {
		return errors.ConfigurationMissing("hospital type percentages are all zero")
	}
	return nil
}

// byClass groups targets per class, each group ordered by hospital id
func byClass(targets []Target) map[domain.HospitalClass][]Target {
	groups := make(map[domain.HospitalClass][]Target)
	for _, t := range targets {
		groups[t.Class] = append(groups[t.Class], t)
	}
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].HospitalID < g[j].HospitalID })
	}
	return groups
}

// floorDiv truncates num/den to an integer; both are non-negative here
func floorDiv(num, den decimal.Decimal) int {
	if den.IsZero() {
		return 0
	}
	q, _ := num.QuoRem(den, 0)
	return int(q.IntPart())
}

// ProportionalPlan gives every target floor(available x share), where share
// is its class percentage normalized over the classes present among the
// targets. Hospitals of one class each get the full class share, so the
// plan can exceed available.
func ProportionalPlan(available int, targets []Target, pct domain.Percentages) []Allocation {
	if available <= 0 {
		return nil
	}
	groups := byClass(targets)

	present := decimal.Zero
	for class := range groups {
		present = present.Add(pct.For(class))
	}
	if !present.IsPositive() {
		return nil
	}

	total := decimal.NewFromInt(int64(available))
	var out []Allocation
	for _, class := range domain.HospitalClasses() {
		members := groups[class]
		share := pct.For(class)
		if len(members) == 0 || !share.IsPositive() {
			continue
		}
		qty := floorDiv(total.Mul(share), present)
		if qty == 0 {
			continue
		}
		for _, t := range members {
			out = append(out, Allocation{HospitalID: t.HospitalID, Class: class, Quantity: qty})
		}
	}
	return out
}

// PerHospitalPercentage is a class share divided by the hospitals of the
// class, rounded to two decimals
func PerHospitalPercentage(classPct decimal.Decimal, hospitals int) decimal.Decimal {
	if hospitals <= 0 {
		return decimal.Zero
	}
	return classPct.Div(decimal.NewFromInt(int64(hospitals))).Round(2)
}

// PerHospitalPercentagePlan gives each hospital floor(total x pct / 100),
// where pct is its class share divided by the hospitals of its class.
// The second result is what truncation left undistributed.
func PerHospitalPercentagePlan(total int, targets []Target, pct domain.Percentages) ([]Allocation, int) {
	if total <= 0 {
		return nil, max(total, 0)
	}
	groups := byClass(targets)
	t := decimal.NewFromInt(int64(total))

	var out []Allocation
	assigned := 0
	for _, class := range domain.HospitalClasses() {
		members := groups[class]
		per := PerHospitalPercentage(pct.For(class), len(members))
		if !per.IsPositive() {
			continue
		}
		qty := floorDiv(t.Mul(per), hundred)
		if qty == 0 {
			continue
		}
		for _, m := range members {
			out = append(out, Allocation{HospitalID: m.HospitalID, Class: class, Quantity: qty})
			assigned += qty
		}
	}
	return out, total - assigned
}

// ClassSplitPlan gives each class floor(total x pct / 100) and splits it
// evenly inside the class; the first hospitals by id absorb the class
// remainder one unit each. Class quantities of classes without hospitals,
// and the truncation left between classes, make up the returned remainder.
func ClassSplitPlan(total int, targets []Target, pct domain.Percentages) ([]Allocation, int) {
	if total <= 0 {
		return nil, max(total, 0)
	}
	groups := byClass(targets)
	t := decimal.NewFromInt(int64(total))

	var out []Allocation
	assigned := 0
	for _, class := range domain.HospitalClasses() {
		members := groups[class]
		share := pct.For(class)
		if len(members) == 0 || !share.IsPositive() {
			continue
		}
		classQty := floorDiv(t.Mul(share), hundred)
		base, extra := classQty/len(members), classQty%len(members)
		for i, m := range members {
			qty := base
			if i < extra {
				qty++
			}
			if qty == 0 {
				continue
			}
			out = append(out, Allocation{HospitalID: m.HospitalID, Class: class, Quantity: qty})
			assigned += qty
		}
	}
	return out, total - assigned
}

// Sum adds up planned quantities
func Sum(allocations []Allocation) int {
	n := 0
	for _, a := range allocations {
		n += a.Quantity
	}
	return n
}
