package migrations

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/shopspring/decimal"
)

// Development seed: a small match catalog in place of the full CSV
// import the catalog loader performs in production.
func init() {
	type seedEvent struct {
		date       string
		country    string
		homeTeam   string
		awayTeam   string
		league     string
		price      decimal.Decimal
		totalSeats int
	}

	seeds := []seedEvent{
		{"2026-11-27", "spain", "Barcelona", "Real Madrid", "SP1", decimal.NewFromInt(150), 50},
		{"2026-11-28", "england", "Manchester United", "Liverpool", "E0", decimal.NewFromInt(120), 5},
		{"2026-11-29", "germany", "Bayern Munich", "Dortmund", "D1", decimal.NewFromFloat(99.50), 30},
		{"2026-12-01", "italy", "Inter", "Milan", "I1", decimal.NewFromFloat(85.90), 1},
	}

	m.Register(func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}

		for _, seed := range seeds {
			date, err := time.Parse("2006-01-02", seed.date)
			if err != nil {
				return err
			}

			record := core.NewRecord(collection)
			record.Set("date", date)
			record.Set("country", seed.country)
			record.Set("home_team", seed.homeTeam)
			record.Set("away_team", seed.awayTeam)
			record.Set("league", seed.league)
			record.Set("price", seed.price.InexactFloat64())
			record.Set("total_seats", seed.totalSeats)

			if err := app.Save(record); err != nil {
				return err
			}
		}

		return nil
	}, func(app core.App) error {
		records, err := app.FindAllRecords("events")
		if err != nil {
			return err
		}
		for _, record := range records {
			if err := app.Delete(record); err != nil {
				return err
			}
		}
		return nil
	})
}
