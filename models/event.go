package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	ID             string          `json:"id"`
	Date           time.Time       `json:"date"`
	Country        string          `json:"country"`
	HomeTeam       string          `json:"home_team"`
	AwayTeam       string          `json:"away_team"`
	League         string          `json:"league"`
	Price          decimal.Decimal `json:"price"`
	TotalSeats     int             `json:"total_seats"`
	AvailableSeats int             `json:"available_seats"`
}
