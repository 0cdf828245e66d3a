package utils

import (
	"log"
	"strings"
	"time"
)

const DefaultDateFormat = "2006-01-02"

// ParseFlexDate parses the statement date formats "20060102" and
// "20060102;150405". Logs an error and returns zero time if parsing fails.
func ParseFlexDate(dateStr string) time.Time {
	if dateStr == "" {
		return time.Time{}
	}
	layout := "20060102"
	if strings.Contains(dateStr, ";") {
		layout = "20060102;150405"
	}
	t, err := time.Parse(layout, dateStr)
	if err != nil {
		log.Printf("Error parsing date '%s' with format '%s': %v. Returning zero time.", dateStr, layout, err)
		return time.Time{}
	}
	return t
}

// DayOf strips the time-of-day component, keeping date math at day
// granularity.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
