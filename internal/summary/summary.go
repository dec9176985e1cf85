package summary

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/stepcord/stepcord/internal/kind"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Summary is a point in time daily/monthly/yearly aggregate for one kind.
// The Display fields are set only when the API pre-formats them.
type Summary struct {
	Kind    kind.Kind
	Daily   int64
	Monthly int64
	Yearly  int64

	DailyDisplay   string
	MonthlyDisplay string
	YearlyDisplay  string
}

type stepsShape struct {
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
	Yearly  int64 `json:"yearly"`
}

type waterShape struct {
	DailyMl        int64  `json:"daily_ml"`
	MonthlyMl      int64  `json:"monthly_ml"`
	YearlyMl       int64  `json:"yearly_ml"`
	DailyDisplay   string `json:"daily_display"`
	MonthlyDisplay string `json:"monthly_display"`
	YearlyDisplay  string `json:"yearly_display"`
}

type sleepShape struct {
	DailyMinutes   int64 `json:"daily_minutes"`
	MonthlyMinutes int64 `json:"monthly_minutes"`
	YearlyMinutes  int64 `json:"yearly_minutes"`
}

// Decode parses the response body of /api/{kind}/summary.
func Decode(k kind.Kind, body []byte) (Summary, error) {
	s := Summary{Kind: k}

	switch k {
	case kind.Steps:
		v := stepsShape{}
		if err := json.Unmarshal(body, &v); err != nil {
			return s, fmt.Errorf("decode %s summary: %w", k, err)
		}

		s.Daily, s.Monthly, s.Yearly = v.Daily, v.Monthly, v.Yearly
	case kind.Water:
		v := waterShape{}
		if err := json.Unmarshal(body, &v); err != nil {
			return s, fmt.Errorf("decode %s summary: %w", k, err)
		}

		s.Daily, s.Monthly, s.Yearly = v.DailyMl, v.MonthlyMl, v.YearlyMl
		s.DailyDisplay, s.MonthlyDisplay, s.YearlyDisplay = v.DailyDisplay, v.MonthlyDisplay, v.YearlyDisplay
	case kind.Sleep:
		v := sleepShape{}
		if err := json.Unmarshal(body, &v); err != nil {
			return s, fmt.Errorf("decode %s summary: %w", k, err)
		}

		s.Daily, s.Monthly, s.Yearly = v.DailyMinutes, v.MonthlyMinutes, v.YearlyMinutes
	default:
		return s, fmt.Errorf("no summary shape for %s", k)
	}

	return s, nil
}

// Values returns the daily, monthly and yearly figures as display strings.
func (s Summary) Values() (daily, monthly, yearly string) {
	return s.format(s.Daily, s.DailyDisplay), s.format(s.Monthly, s.MonthlyDisplay), s.format(s.Yearly, s.YearlyDisplay)
}

func (s Summary) format(v int64, display string) string {
	if display != "" {
		return display
	}

	switch s.Kind {
	case kind.Water:
		return FormatMillilitres(v)
	case kind.Sleep:
		return FormatMinutes(v)
	default:
		return FormatNumber(v)
	}
}

// FormatNumber abbreviates n with one decimal: 12345 -> "12.3K", 7890123 -> "7.9M".
// Values that would round up to "1000.0K" are shown as "1.0M".
func FormatNumber(n int64) string {
	switch {
	case n >= 999_950:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func FormatMillilitres(ml int64) string {
	if ml >= 1_000 {
		return fmt.Sprintf("%.1fL", float64(ml)/1_000)
	}

	return fmt.Sprintf("%dml", ml)
}

func FormatMinutes(m int64) string {
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}

	return fmt.Sprintf("%dh %dm", m/60, m%60)
}
