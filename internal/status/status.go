package status

import (
	"fmt"
	"time"

	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/summary"
)

// Status is one visible presence update.
type Status struct {
	Title    string
	Subtitle string
	Start    time.Time
	End      time.Time

	ImageKey  string
	ImageText string
}

type Assets struct {
	ImageKey  string
	ImageText string
}

// ForSummary renders a fetched summary. The elapsed time window spans the
// local calendar day containing now.
func ForSummary(s summary.Summary, now time.Time, a Assets) Status {
	daily, monthly, yearly := s.Values()
	start, end := DayWindow(now)

	return Status{
		Title:     fmt.Sprintf("Today: %s", daily),
		Subtitle:  fmt.Sprintf("Monthly: %s | Yearly: %s", monthly, yearly),
		Start:     start,
		End:       end,
		ImageKey:  a.ImageKey,
		ImageText: a.ImageText,
	}
}

// Degraded is shown in place of a summary that could not be fetched.
func Degraded(k kind.Kind) Status {
	return Status{
		Title:    "API connection error",
		Subtitle: fmt.Sprintf("Unable to fetch %s", k.Noun()),
	}
}

// DayWindow returns 00:00:00 and 23:59:59 of the day of now, in now's location.
func DayWindow(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	loc := now.Location()

	return time.Date(y, m, d, 0, 0, 0, 0, loc), time.Date(y, m, d, 23, 59, 59, 0, loc)
}
