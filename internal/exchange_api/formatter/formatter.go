package formatter

import (
	"encoding/json"
	"fmt"
	"github.com/langowen/exchange-rates/internal/entities"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"sort"
	"strings"
)

type Shape string

const (
	ShapeWeb  Shape = "web"
	ShapeChat Shape = "chat"

	Description = "All rates are quoted in KRW. JPY100 is the rate for 100 yen."
)

var hundred = decimal.NewFromInt(100)

func ParseShape(s string) (Shape, error) {
	switch Shape(s) {
	case ShapeWeb, ShapeChat:
		return Shape(s), nil
	default:
		return "", errors.Wrapf(entities.ErrInvalidFormat, "got %q", s)
	}
}

type Output struct {
	Format   Shape    `json:"format"`
	Data     []Day    `json:"data"`
	Metadata Metadata `json:"metadata"`
}

type Day struct {
	Date  string `json:"date"`
	Text  string `json:"text,omitempty"`
	Rates []Rate `json:"rates"`
}

// Rate carries all three fields for web output and only Base (plus ChangePct
// when a previous day exists) for chat output.
type Rate struct {
	Currency  entities.Currency `json:"currency"`
	Buy       json.Number       `json:"buy,omitempty"`
	Sell      json.Number       `json:"sell,omitempty"`
	Base      json.Number       `json:"base"`
	ChangePct *json.Number      `json:"change_pct,omitempty"`
}

type Metadata struct {
	RequestedDays int      `json:"requested_days"`
	TotalDays     int      `json:"total_days"`
	LatestDate    string   `json:"latest_date,omitempty"`
	Currencies    []string `json:"currencies"`
	Description   string   `json:"description"`
}

// Format projects quotes into the requested shape. Quotes may arrive in any
// date order; order within a date is preserved.
func Format(quotes []entities.RateQuote, shape Shape) (*Output, error) {
	const op = "formatter.Format"

	days := groupByDate(quotes)

	out := &Output{
		Format: shape,
		Metadata: Metadata{
			TotalDays:   len(days),
			Currencies:  currencyNames(),
			Description: Description,
		},
	}
	if len(days) > 0 {
		out.Metadata.LatestDate = days[len(days)-1].date
	}

	switch shape {
	case ShapeWeb:
		out.Data = web(days)
	case ShapeChat:
		out.Data = chat(days)
	default:
		return nil, errors.Wrapf(entities.ErrInvalidFormat, "%s: got %q", op, shape)
	}

	return out, nil
}

type dayQuotes struct {
	date   string
	quotes []entities.RateQuote
}

// groupByDate returns one bucket per date, dates ascending.
func groupByDate(quotes []entities.RateQuote) []dayQuotes {
	idx := make(map[string]int)
	var days []dayQuotes

	for _, q := range quotes {
		d := q.DateString()
		i, ok := idx[d]
		if !ok {
			i = len(days)
			idx[d] = i
			days = append(days, dayQuotes{date: d})
		}
		days[i].quotes = append(days[i].quotes, q)
	}

	sort.SliceStable(days, func(i, j int) bool { return days[i].date < days[j].date })

	return days
}

func web(days []dayQuotes) []Day {
	data := make([]Day, 0, len(days))

	for _, d := range days {
		rates := make([]Rate, 0, len(d.quotes))
		for _, q := range d.quotes {
			rates = append(rates, Rate{
				Currency: q.Currency,
				Buy:      number(q.BuyRate),
				Sell:     number(q.SellRate),
				Base:     number(q.BaseRate),
			})
		}
		data = append(data, Day{Date: d.date, Rates: rates})
	}

	return data
}

func chat(days []dayQuotes) []Day {
	data := make([]Day, 0, len(days))

	for i := len(days) - 1; i >= 0; i-- {
		var prev map[entities.Currency]decimal.Decimal
		if i > 0 {
			prev = make(map[entities.Currency]decimal.Decimal, len(days[i-1].quotes))
			for _, q := range days[i-1].quotes {
				prev[q.Currency] = q.BaseRate
			}
		}

		rates := make([]Rate, 0, len(days[i].quotes))
		parts := make([]string, 0, len(days[i].quotes))

		for _, q := range days[i].quotes {
			r := Rate{Currency: q.Currency, Base: number(q.BaseRate)}
			part := fmt.Sprintf("%s %s", q.Currency, q.BaseRate.StringFixed(entities.RatePrecision))

			if p, ok := prev[q.Currency]; ok && !p.IsZero() {
				pct := q.BaseRate.Sub(p).Div(p).Mul(hundred).Round(entities.RatePrecision)
				n := number(pct)
				r.ChangePct = &n
				part += " " + trend(pct)
			}

			rates = append(rates, r)
			parts = append(parts, part)
		}

		data = append(data, Day{
			Date:  days[i].date,
			Text:  days[i].date + " " + strings.Join(parts, " | "),
			Rates: rates,
		})
	}

	return data
}

func trend(pct decimal.Decimal) string {
	s := pct.Abs().StringFixed(entities.RatePrecision) + "%"
	switch pct.Sign() {
	case 1:
		return "▲" + s
	case -1:
		return "▼" + s
	default:
		return s
	}
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(entities.RatePrecision))
}

func currencyNames() []string {
	names := make([]string, 0, len(entities.Currencies))
	for _, c := range entities.Currencies {
		names = append(names, c.String())
	}

	return names
}
