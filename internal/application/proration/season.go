package proration

import (
	"regexp"
	"strings"
	"time"
)

// Season is the schedule a registration belongs to
type Season struct {
	Start    time.Time
	OffDates []time.Time
}

const datePattern = `(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})`

var (
	seasonDatesRe = regexp.MustCompile(`(?i)season\s+dates?\s*:\s*` + datePattern)
	seasonStartRe = regexp.MustCompile(`(?i)season\s+start(?:s|\s+date)?\s*:\s*` + datePattern)
	offDatesRe    = regexp.MustCompile(`(?i)(?:off\s+dates?|closed|no\s+games)\s*:\s*([^\n]*)`)
	anyDateRe     = regexp.MustCompile(datePattern)
)

// ParseSeason extracts the season start and off dates from a product
// description. ok is false when no start date can be found.
func ParseSeason(description string, loc *time.Location) (season Season, ok bool) {
	if loc == nil {
		loc = time.UTC
	}

	var startRaw string
	if m := seasonStartRe.FindStringSubmatch(description); m != nil {
		startRaw = m[1]
	} else if m := seasonDatesRe.FindStringSubmatch(description); m != nil {
		startRaw = m[1]
	}
	if startRaw == "" {
		return Season{}, false
	}

	start, err := parseDate(startRaw, loc)
	if err != nil {
		return Season{}, false
	}
	season.Start = start

	for _, m := range offDatesRe.FindAllStringSubmatch(description, -1) {
		for _, raw := range anyDateRe.FindAllString(m[1], -1) {
			if d, err := parseDate(raw, loc); err == nil {
				season.OffDates = append(season.OffDates, d)
			}
		}
	}

	return season, true
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	if strings.Contains(raw, "-") {
		return time.ParseInLocation("2006-01-02", raw, loc)
	}
	parts := strings.Split(raw, "/")
	layout := "1/2/2006"
	if len(parts) == 3 && len(parts[2]) == 2 {
		layout = "1/2/06"
	}
	return time.ParseInLocation(layout, raw, loc)
}

// ElapsedWeeks counts the whole weeks of season that have fully passed at
// time at. Weeks containing an off date are not counted. It returns -1 when
// at is before the season starts.
func ElapsedWeeks(season Season, at time.Time) int {
	if at.Before(season.Start) {
		return -1
	}

	weeks := 0
	for k := 0; ; k++ {
		weekStart := season.Start.AddDate(0, 0, 7*k)
		weekEnd := season.Start.AddDate(0, 0, 7*(k+1))
		if weekEnd.After(at) {
			break
		}
		if !hasDateIn(season.OffDates, weekStart, weekEnd) {
			weeks++
		}
	}
	return weeks
}

func hasDateIn(dates []time.Time, from, to time.Time) bool {
	for _, d := range dates {
		if !d.Before(from) && d.Before(to) {
			return true
		}
	}
	return false
}
