package services

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"gorm.io/gorm"

	"github.com/camprush/camprush/internal/models"
)

var (
	reLetters = regexp.MustCompile(`[A-Za-z]`)
	// Only allow digits, spaces, +, -, (, ), and dots
	reAllowed = regexp.MustCompile(`^[0-9+\-\s\(\)\.]+$`)
	// E.164: + followed by 8..15 digits (no leading 0 after +)
	reE164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
)

var ErrParentNotFound = errors.New("parent not found")

// NormPhone normalizes a phone number to E.164 using countryCode (digits,
// no plus) for national numbers. It returns "" for input that cannot be a
// phone number.
// Rules: strip separators; 00.. -> +..; cc.. -> +cc..; 0.. (trunk prefix) -> +cc..; else +cc..
func NormPhone(p, countryCode string) string {
	s := strings.TrimSpace(p)
	if s == "" || reLetters.MatchString(s) || !reAllowed.MatchString(s) {
		return ""
	}
	cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")

	repl := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "", "\n", "", "\r", "")
	s = repl.Replace(s)

	switch {
	case strings.HasPrefix(s, "+"):
	case strings.HasPrefix(s, "00"):
		s = "+" + s[2:]
	case cc != "" && strings.HasPrefix(s, "0"):
		s = "+" + cc + s[1:]
	case cc != "" && strings.HasPrefix(s, cc) && len(s) > 10:
		s = "+" + s
	case cc != "":
		s = "+" + cc + s
	default:
		s = "+" + s
	}
	if !reE164.MatchString(s) {
		return ""
	}
	return s
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func altPhones(p, countryCode string) []string {
	out := []string{}
	n := NormPhone(p, countryCode)
	raw := strings.TrimSpace(p)

	if n != "" {
		out = append(out, n)
		out = append(out, n[1:]) // drop plus
		cc := "+" + strings.TrimPrefix(countryCode, "+")
		if cc != "+" && strings.HasPrefix(n, cc) {
			out = append(out, "0"+n[len(cc):]) // national with trunk 0
			out = append(out, n[len(cc):])     // bare national
		}
	}
	if raw != n && raw != "" {
		out = append(out, raw)
	}
	return out
}

// FindParentByAny tries several normalised variants, then a digits-only SQL
// compare, to match a phone typed or shared in any common format.
func FindParentByAny(gdb *gorm.DB, phone, countryCode string) (*models.Parent, error) {
	var parent models.Parent

	for _, cand := range altPhones(phone, countryCode) {
		if err := gdb.Where("phone = ?", cand).First(&parent).Error; err == nil {
			return &parent, nil
		}
	}

	// fallback: digits-only compare in SQL (ignore +, spaces, -, ())
	inDigits := digitsOnly(phone)
	if inDigits != "" {
		q := `
			REPLACE(REPLACE(REPLACE(REPLACE(REPLACE(phone,'+',''),' ',''),'-',''),'(',''),')','')
		`
		if err := gdb.Where(q+" = ?", inDigits).First(&parent).Error; err == nil {
			return &parent, nil
		}
	}

	return nil, ErrParentNotFound
}
