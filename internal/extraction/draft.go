package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/prasetya/receiptbot/internal"
)

// Categories the extraction prompt is allowed to pick from.
var Categories = []string{
	"food", "alcohol", "transport", "clothes", "vacation", "sport",
	"healthcare", "beauty", "household", "car", "cat", "other",
}

// TotalTolerance is how far the declared total may drift from the position
// sum before the draft is flagged for an explicit override.
var TotalTolerance = decimal.NewFromFloat(0.05)

// Position is one line item of a draft.
type Position struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
}

// Subtotal is the position's contribution to the receipt total. Quantity on
// real receipts is usually a count but can be a weight; price is already the
// line amount, so the subtotal is just the price.
func (p Position) Subtotal() decimal.Decimal {
	return p.Price
}

// Draft is the unconfirmed result of AI extraction. It is never persisted;
// confirming a draft converts it to a receipt.
type Draft struct {
	Merchant    string          `json:"merchant"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Date        string          `json:"date,omitempty"` // DD-MM-YYYY
	Positions   []Position      `json:"positions"`
	Comment     string          `json:"comment,omitempty"`
	// TotalMismatch is set when the declared total disagrees with the
	// position sum beyond tolerance; persisting then requires an explicit
	// override from the user.
	TotalMismatch bool `json:"total_mismatch,omitempty"`
}

// PositionSum adds up all line item subtotals.
func (d *Draft) PositionSum() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range d.Positions {
		sum = sum.Add(p.Subtotal())
	}
	return sum
}

// flexNumber accepts a JSON number or a quoted string; the provider is not
// consistent about which it emits.
type flexNumber string

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return err
		}
		*f = flexNumber(unquoted)
		return nil
	}
	*f = flexNumber(s)
	return nil
}

// wire mirrors the provider's JSON, tolerating numbers arriving as strings.
type wireDraft struct {
	Merchant    string         `json:"merchant"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	TotalAmount flexNumber     `json:"total_amount"`
	Date        string         `json:"date"`
	Positions   []wirePosition `json:"positions"`
}

type wirePosition struct {
	Description string     `json:"description"`
	Quantity    flexNumber `json:"quantity"`
	Category    string     `json:"category"`
	Price       flexNumber `json:"price"`
}

// ParseDraft decodes and normalizes the provider's JSON output. A decode
// failure is a permanent AI error: the model produced something we cannot
// use and retrying the same response buys nothing.
func ParseDraft(raw string) (*Draft, error) {
	var w wireDraft
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, internal.NewAIPermanentError("could not understand receipt, please retry", err)
	}

	total, err := parseAmount(w.TotalAmount)
	if err != nil {
		return nil, internal.NewAIPermanentError("could not understand receipt total", err)
	}

	d := &Draft{
		Merchant:    strings.TrimSpace(w.Merchant),
		Category:    normalizeCategory(w.Category),
		Description: strings.TrimSpace(w.Description),
		TotalAmount: total,
		Date:        strings.TrimSpace(w.Date),
	}
	if d.Merchant == "" {
		d.Merchant = "Unknown"
	}

	for _, wp := range w.Positions {
		desc := strings.TrimSpace(wp.Description)
		if desc == "" {
			continue
		}
		price, err := parseAmount(wp.Price)
		if err != nil {
			continue
		}
		// Negative positions are discounts already reflected in the total.
		if price.IsNegative() {
			continue
		}
		qty, err := parseAmount(wp.Quantity)
		if err != nil || qty.IsNegative() || qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}
		d.Positions = append(d.Positions, Position{
			Description: desc,
			Quantity:    qty,
			Category:    normalizeCategory(wp.Category),
			Price:       price,
		})
	}

	d.TotalMismatch = len(d.Positions) > 0 &&
		d.TotalAmount.Sub(d.PositionSum()).Abs().GreaterThan(TotalTolerance)

	return d, nil
}

// Validate checks the invariants a draft must hold before confirmation.
func (d *Draft) Validate() error {
	if d.TotalAmount.IsNegative() {
		return internal.NewValidationError("total amount cannot be negative", internal.ErrCodeInvalidDraft)
	}
	for i, p := range d.Positions {
		if strings.TrimSpace(p.Description) == "" {
			return internal.NewValidationError(
				fmt.Sprintf("position %d has an empty description", i+1),
				internal.ErrCodeInvalidDraft,
			)
		}
		if p.Price.IsNegative() || p.Quantity.IsNegative() {
			return internal.NewValidationError(
				fmt.Sprintf("position %q has a negative amount", p.Description),
				internal.ErrCodeInvalidDraft,
			)
		}
	}
	return nil
}

func parseAmount(n flexNumber) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(n))
	if s == "" || s == "null" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func normalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return "other"
}
