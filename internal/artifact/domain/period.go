package domain

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// dailyPeriodLayout is the canonical day format for recurring artifacts.
const dailyPeriodLayout = "2006-01-02"

// DailyPeriodID computes the period identifier for recurring artifacts.
// Every instance must evaluate the calendar day in the same reference
// location, otherwise two requests near midnight could land in different
// periods for the same human day.
func DailyPeriodID(at time.Time, reference *time.Location) string {
	if reference == nil {
		reference = time.UTC
	}
	return at.In(reference).Format(dailyPeriodLayout)
}

// RequestPeriodID mints a unique period token for non-recurring
// artifacts, so each request occupies its own slot.
func RequestPeriodID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}
