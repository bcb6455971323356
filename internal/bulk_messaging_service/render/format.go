package render

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MissingValue replaces tags whose source field is empty.
const MissingValue = "N/A"

const dateLayout = "02/01/2006"

var locale = language.BrazilianPortuguese

// weekdays is indexed by time.Weekday.
var weekdays = [...]string{
	"domingo",
	"segunda-feira",
	"terça-feira",
	"quarta-feira",
	"quinta-feira",
	"sexta-feira",
	"sábado",
}

func orMissing(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return MissingValue
	}
	return s
}

func formatCurrency(p *message.Printer, amount *float64) string {
	if amount == nil {
		return MissingValue
	}
	return p.Sprintf("R$ %.2f", *amount)
}

func formatDate(due *time.Time) string {
	if due == nil {
		return MissingValue
	}
	return due.Format(dateLayout)
}

// formatDateWithWeekday renders "09/03/2025, Domingo".
func formatDateWithWeekday(due *time.Time) string {
	if due == nil {
		return MissingValue
	}
	return due.Format(dateLayout) + ", " + upperFirst(weekdays[due.Weekday()])
}

// upperFirst capitalises only the first rune: "quarta-feira" becomes "Quarta-feira".
func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return MissingValue
	}
	return cases.Title(locale).String(strings.ToLower(fields[0]))
}

// dayDelta is ceil((due - now) / 24h), with due taken at midnight in loc.
func dayDelta(due time.Time, now time.Time, loc *time.Location) int {
	y, m, d := due.Date()
	dueMidnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	days := math.Ceil(dueMidnight.Sub(now).Hours() / 24)
	return int(days)
}

func daysUntil(due *time.Time, now time.Time, loc *time.Location) string {
	if due == nil {
		return MissingValue
	}
	return strconv.Itoa(max(dayDelta(*due, now, loc), 0))
}

func daysPast(due *time.Time, now time.Time, loc *time.Location) string {
	if due == nil {
		return MissingValue
	}
	return strconv.Itoa(max(-dayDelta(*due, now, loc), 0))
}
