package entities

import (
	"time"

	"github.com/google/uuid"
)

type RatesIngested struct {
	ID         uuid.UUID `json:"id"`
	Date       string    `json:"date"`
	Inserted   int       `json:"inserted"`
	IngestedAt time.Time `json:"ingested_at"`
}

func NewRatesIngested(date time.Time, inserted int, at time.Time) RatesIngested {
	return RatesIngested{
		ID:         uuid.New(),
		Date:       date.Format(DateLayout),
		Inserted:   inserted,
		IngestedAt: at.UTC(),
	}
}
