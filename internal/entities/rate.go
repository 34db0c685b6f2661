package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// RatePrecision is the number of decimal places every stored rate carries.
const RatePrecision = 2

type RateQuote struct {
	Currency Currency
	Date     time.Time
	BuyRate  decimal.Decimal
	SellRate decimal.Decimal
	BaseRate decimal.Decimal
}

func NewRateQuote(currency Currency, date time.Time, buy, sell, base decimal.Decimal) (*RateQuote, error) {
	if !currency.IsSupported() {
		return nil, fmt.Errorf("unsupported currency %q", currency)
	}
	for _, v := range []decimal.Decimal{buy, sell, base} {
		if v.IsNegative() {
			return nil, fmt.Errorf("negative rate %s for %s", v, currency)
		}
	}

	return &RateQuote{
		Currency: currency,
		Date:     TruncateDate(date),
		BuyRate:  buy.Round(RatePrecision),
		SellRate: sell.Round(RatePrecision),
		BaseRate: base.Round(RatePrecision),
	}, nil
}

func (q RateQuote) DateString() string {
	return q.Date.Format(DateLayout)
}

// Equal compares currency, calendar date and the three rates by value.
func (q RateQuote) Equal(other RateQuote) bool {
	return q.Currency == other.Currency &&
		q.DateString() == other.DateString() &&
		q.BuyRate.Equal(other.BuyRate) &&
		q.SellRate.Equal(other.SellRate) &&
		q.BaseRate.Equal(other.BaseRate)
}

// TruncateDate drops the clock and zone, keeping the calendar date as seen in t's location.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// ValidateWindow checks a requested window against the configured ceiling.
func ValidateWindow(days, maxDays int) error {
	if days < 1 || days > maxDays {
		return fmt.Errorf("%w: days must be between 1 and %d, got %d", ErrInvalidWindow, maxDays, days)
	}

	return nil
}
