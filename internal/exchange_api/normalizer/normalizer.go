package normalizer

import (
	"fmt"
	"github.com/langowen/exchange-rates/internal/entities"
	"github.com/langowen/exchange-rates/internal/exchange_api/adapter/api_client/koreaexim"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"strings"
	"time"
)

// unitAliases maps provider units onto canonical currencies. JPY is already
// quoted per 100 yen upstream, so no rescaling happens here.
var unitAliases = map[string]entities.Currency{
	"USD":      entities.USD,
	"EUR":      entities.EUR,
	"CNH":      entities.CNH,
	"JPY(100)": entities.JPY100,
	"JPY100":   entities.JPY100,
}

// Normalize converts provider records for date into rate quotes, keeping the
// provider's order. Records for unsupported currencies are dropped.
func Normalize(date time.Time, records []koreaexim.Record) ([]entities.RateQuote, error) {
	const op = "normalizer.Normalize"

	quotes := make([]entities.RateQuote, 0, len(entities.Currencies))
	seen := make(map[entities.Currency]struct{}, len(entities.Currencies))

	for _, r := range records {
		cur, ok := Canonical(r.CurUnit)
		if !ok {
			continue
		}

		if _, dup := seen[cur]; dup {
			return nil, errors.Wrapf(entities.ErrUpstreamMalformed, "%s: duplicate currency %s", op, cur)
		}
		seen[cur] = struct{}{}

		buy, err := ParseAmount(r.TTB)
		if err != nil {
			return nil, errors.Wrapf(entities.ErrUpstreamMalformed, "%s: %s ttb: %v", op, cur, err)
		}
		sell, err := ParseAmount(r.TTS)
		if err != nil {
			return nil, errors.Wrapf(entities.ErrUpstreamMalformed, "%s: %s tts: %v", op, cur, err)
		}
		base, err := ParseAmount(r.DealBasR)
		if err != nil {
			return nil, errors.Wrapf(entities.ErrUpstreamMalformed, "%s: %s deal_bas_r: %v", op, cur, err)
		}

		q, err := entities.NewRateQuote(cur, date, buy, sell, base)
		if err != nil {
			return nil, errors.Wrapf(entities.ErrUpstreamMalformed, "%s: %v", op, err)
		}

		quotes = append(quotes, *q)
	}

	return quotes, nil
}

func Canonical(unit string) (entities.Currency, bool) {
	cur, ok := unitAliases[strings.ToUpper(strings.TrimSpace(unit))]
	return cur, ok
}

// ParseAmount reads a provider amount such as "1,320.50". Blank and negative
// values are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("missing value")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", s)
	}

	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative value %s", d)
	}

	return d.Round(entities.RatePrecision), nil
}
