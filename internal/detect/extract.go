package detect

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// "registration opens on march 3, 2026 at 9:00 am"
	reOpensMonthDay = regexp.MustCompile(`(?:registration|enrollment|sign[- ]?ups?)\s+(?:opens|will open|begins|starts)\s+(?:on\s+)?(?:[a-z]+day,?\s+)?([a-z]{3,9})\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})(?:\s+at\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?)?`)
	// "registration opens 03/03/2026"
	reOpensNumeric = regexp.MustCompile(`(?:registration|enrollment|sign[- ]?ups?)\s+(?:opens|will open|begins|starts)\s+(?:on\s+)?(\d{1,2})/(\d{1,2})/(\d{4})`)
)

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "sept": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December,
}

// ExtractOpenTime finds an announced opening time in lower-cased page text.
// Times without a clock component default to 09:00 in loc.
func ExtractOpenTime(text string, loc *time.Location) *time.Time {
	if m := reOpensMonthDay.FindStringSubmatch(text); m != nil {
		month, ok := lookupMonth(m[1])
		if ok {
			day, _ := strconv.Atoi(m[2])
			year, _ := strconv.Atoi(m[3])
			hour, minute := clock(m[4], m[5], m[6])
			if t, ok := validDate(year, month, day, hour, minute, loc); ok {
				return &t
			}
		}
	}
	if m := reOpensNumeric.FindStringSubmatch(text); m != nil {
		mo, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if mo >= 1 && mo <= 12 {
			if t, ok := validDate(year, time.Month(mo), day, 9, 0, loc); ok {
				return &t
			}
		}
	}
	return nil
}

func lookupMonth(s string) (time.Month, bool) {
	s = strings.TrimSuffix(strings.ToLower(s), ".")
	if m, ok := monthNames[s]; ok {
		return m, true
	}
	if len(s) >= 3 {
		if m, ok := monthNames[s[:3]]; ok {
			return m, true
		}
	}
	return 0, false
}

func clock(h, m, ampm string) (int, int) {
	if h == "" {
		return 9, 0
	}
	hour, _ := strconv.Atoi(h)
	minute, _ := strconv.Atoi(m)
	switch strings.ReplaceAll(ampm, ".", "") {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return 9, 0
	}
	return hour, minute
}

func validDate(y int, m time.Month, d, hh, mm int, loc *time.Location) (time.Time, bool) {
	t := time.Date(y, m, d, hh, mm, 0, 0, loc)
	if t.Month() != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
