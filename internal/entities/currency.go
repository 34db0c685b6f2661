package entities

type Currency string

const (
	USD    Currency = "USD"
	EUR    Currency = "EUR"
	JPY100 Currency = "JPY100"
	CNH    Currency = "CNH"
)

// Currencies is the canonical set in display order.
var Currencies = []Currency{USD, EUR, JPY100, CNH}

func (c Currency) IsSupported() bool {
	for _, supported := range Currencies {
		if c == supported {
			return true
		}
	}
	return false
}

func (c Currency) String() string {
	return string(c)
}
