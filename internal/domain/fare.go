package domain

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

type FareLine struct {
	UnitID    string          `json:"unit_id"`
	Label     string          `json:"label"`
	Class     string          `json:"class"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Amount    decimal.Decimal `json:"amount"`
}

// Fare is the price breakdown of a reservation, fixed when the hold is created.
type Fare struct {
	Lines    []FareLine      `json:"lines"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// SeatFare prices one passenger per seat at the seat's base fare.
func SeatFare(seats []InventoryUnit, currency string) Fare {
	lines := make([]FareLine, 0, len(seats))
	for _, s := range seats {
		lines = append(lines, FareLine{
			UnitID:    s.ID,
			Label:     s.Label,
			Class:     s.Class,
			UnitPrice: s.BaseFare,
			Quantity:  1,
			Amount:    s.BaseFare,
		})
	}
	return newFare(lines, currency)
}

// RoomFare prices every room at its nightly rate for the given nights.
func RoomFare(rooms []InventoryUnit, nights int, currency string) Fare {
	lines := make([]FareLine, 0, len(rooms))
	for _, r := range rooms {
		lines = append(lines, FareLine{
			UnitID:    r.ID,
			Label:     r.Label,
			Class:     r.Class,
			UnitPrice: r.BaseFare,
			Quantity:  nights,
			Amount:    r.BaseFare.Mul(decimal.NewFromInt(int64(nights))),
		})
	}
	return newFare(lines, currency)
}

func newFare(lines []FareLine, currency string) Fare {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return Fare{Lines: lines, Total: total, Currency: strings.ToLower(currency)}
}

// MinorUnits converts the total to integer cents for the payment processor.
func (f Fare) MinorUnits() (int64, error) {
	if f.Total.IsNegative() {
		return 0, errors.Wrapf(ErrInvalidInput, "negative fare total %s", f.Total)
	}
	return f.Total.Round(2).Shift(2).IntPart(), nil
}
