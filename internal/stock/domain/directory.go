package domain

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Hospital is read-only master data
type Hospital struct {
	ID             int64  `db:"id" json:"id"`
	Name           string `db:"name" json:"name"`
	Classification string `db:"classification" json:"classification"`
	Active         bool   `db:"active" json:"active"`
}

// Class normalizes the free-text classification
func (h Hospital) Class() (HospitalClass, bool) {
	return ParseHospitalClass(h.Classification)
}

// Site is a physical location of a hospital that operates one warehouse kind
type Site struct {
	ID            int64         `db:"id" json:"id"`
	HospitalID    int64         `db:"hospital_id" json:"hospital_id"`
	Name          string        `db:"name" json:"name"`
	WarehouseKind WarehouseKind `db:"warehouse_kind" json:"warehouse_kind"`
	Active        bool          `db:"active" json:"active"`
}

// Warehouse returns the warehouse the site operates
func (s Site) Warehouse() WarehouseRef {
	return WarehouseRef{Kind: s.WarehouseKind, HospitalID: s.HospitalID, SiteID: s.ID}
}

// Supply is a catalog item
type Supply struct {
	ID   int64  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// HospitalClass is one of the four classifications percentages are set for
type HospitalClass string

const (
	Class1 HospitalClass = "class1"
	Class2 HospitalClass = "class2"
	Class3 HospitalClass = "class3"
	Class4 HospitalClass = "class4"
)

// HospitalClasses lists the classes in order
func HospitalClasses() []HospitalClass {
	return []HospitalClass{Class1, Class2, Class3, Class4}
}

var classPrefixes = []string{"hospital", "tipo", "type", "clase", "class"}

// ParseHospitalClass reads labels such as "1", "tipo 1", "Tipo1",
// "hospital_tipo1" or "Hospital Tipo 1".
func ParseHospitalClass(raw string) (HospitalClass, bool) {
	label := FoldText(raw)
	label = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, label)

	for changed := true; changed; {
		changed = false
		for _, p := range classPrefixes {
			if rest, ok := strings.CutPrefix(label, p); ok {
				label, changed = rest, true
			}
		}
	}

	switch label {
	case "1":
		return Class1, true
	case "2":
		return Class2, true
	case "3":
		return Class3, true
	case "4":
		return Class4, true
	}
	return "", false
}

// FoldText lower-cases s, strips accents and collapses whitespace so that
// "Jeringa  Desechable" and "jeringa desechable" compare equal.
func FoldText(s string) string {
	// chains carry buffers, so each call builds its own
	foldAccents := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(foldAccents, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Percentages is the share of a distribution assigned to each hospital class
type Percentages struct {
	Class1 decimal.Decimal `db:"class1" json:"class1"`
	Class2 decimal.Decimal `db:"class2" json:"class2"`
	Class3 decimal.Decimal `db:"class3" json:"class3"`
	Class4 decimal.Decimal `db:"class4" json:"class4"`
}

// For returns the configured share of class c
func (p Percentages) For(c HospitalClass) decimal.Decimal {
	switch c {
	case Class1:
		return p.Class1
	case Class2:
		return p.Class2
	case Class3:
		return p.Class3
	case Class4:
		return p.Class4
	}
	return decimal.Zero
}

// Total sums the four shares
func (p Percentages) Total() decimal.Decimal {
	return p.Class1.Add(p.Class2).Add(p.Class3).Add(p.Class4)
}
