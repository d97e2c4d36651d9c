package workflow

import (
	"time"

	"github.com/prasetya/receiptbot/internal/extraction"
	"github.com/prasetya/receiptbot/internal/receipt"
)

const dateLayout = "02-01-2006" // DD-MM-YYYY, the format the extractor emits

func receiptFromDraft(userID int64, d *extraction.Draft) *receipt.Receipt {
	rec := &receipt.Receipt{
		UserID:      userID,
		Merchant:    d.Merchant,
		Category:    d.Category,
		Description: d.Description,
		TotalAmount: d.TotalAmount,
	}

	if d.Date != "" {
		if parsed, err := time.Parse(dateLayout, d.Date); err == nil {
			rec.PurchaseDate = &parsed
		}
	}

	for _, p := range d.Positions {
		rec.Positions = append(rec.Positions, receipt.Position{
			Description: p.Description,
			Quantity:    p.Quantity,
			Category:    p.Category,
			Price:       p.Price,
		})
	}

	return rec
}

func draftFromReceipt(r *receipt.Receipt) *extraction.Draft {
	d := &extraction.Draft{
		Merchant:    r.Merchant,
		Category:    r.Category,
		Description: r.Description,
		TotalAmount: r.TotalAmount,
	}

	if r.PurchaseDate != nil {
		d.Date = r.PurchaseDate.Format(dateLayout)
	}

	for _, p := range r.Positions {
		d.Positions = append(d.Positions, extraction.Position{
			Description: p.Description,
			Quantity:    p.Quantity,
			Category:    p.Category,
			Price:       p.Price,
		})
	}

	return d
}
