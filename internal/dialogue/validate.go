package dialogue

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/br"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Validator turns raw input into a field value. A non-nil error is shown to
// the user verbatim and the question is asked again. (nil, nil) means the
// optional field was left empty.
type Validator func(input string) (any, error)

// MaxNotesLength caps the notes field, counted in characters.
const MaxNotesLength = 500

var (
	timeRx = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

	// calendar dates at the start of a datetime: 2025-10-31T20:00, 31/10/2025 21h
	isoPrefixRx = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})(?:[T ]|$)`)
	dmyPrefixRx = regexp.MustCompile(`^(\d{1,2})[/.](\d{1,2})[/.](\d{4})(?:\D|$)`)

	dateParser = newDateParser()
)

func newDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(br.All...)
	w.Add(common.All...)
	return w
}

func invalid(format string, args ...any) error {
	return errors.New("❌ " + fmt.Sprintf(format, args...))
}

// Required accepts any trimmed text of at least minLen characters.
func Required(field string, minLen int) Validator {
	return func(input string) (any, error) {
		v := strings.TrimSpace(input)
		if v == "" {
			return nil, invalid("%s is required.", field)
		}
		if utf8.RuneCountInString(v) < minLen {
			return nil, invalid("%s is too short.", field)
		}
		return v, nil
	}
}

// Date accepts YYYY-MM-DD (alone or leading a datetime), DD/MM/YYYY, and
// natural language ("next friday", "amanhã"). The value is a time.Time at
// midnight UTC of the calendar day written in the input.
func Date(now func() time.Time) Validator {
	if now == nil {
		now = time.Now
	}
	return func(input string) (any, error) {
		v := strings.TrimSpace(input)
		if v == "" {
			return nil, invalid("Date is required. Use YYYY-MM-DD or something like \"next friday\".")
		}
		if d, ok := calendarDate(v); ok {
			return d, nil
		}
		if d, ok := fuzzyDate(v, now()); ok {
			return d, nil
		}
		return nil, invalid("Could not understand %q as a date. Use YYYY-MM-DD or something like \"next friday\".", v)
	}
}

func calendarDate(text string) (time.Time, bool) {
	var y, m, d string
	if g := isoPrefixRx.FindStringSubmatch(text); g != nil {
		y, m, d = g[1], g[2], g[3]
	} else if g := dmyPrefixRx.FindStringSubmatch(text); g != nil {
		y, m, d = g[3], g[2], g[1]
	} else {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-1-2", y+"-"+m+"-"+d)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// fuzzyDate rejects matches that leave most of the input unexplained, so a
// stray clock time inside other text does not resolve to the base day.
func fuzzyDate(text string, base time.Time) (time.Time, bool) {
	r, err := dateParser.Parse(text, base)
	if err != nil || r == nil {
		return time.Time{}, false
	}
	if 2*len(strings.TrimSpace(r.Text)) < len(text) {
		return time.Time{}, false
	}
	t := r.Time
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

// Time accepts 24-hour HH:mm.
func Time() Validator {
	return optional(func(v string) (any, error) {
		if !timeRx.MatchString(v) {
			return nil, invalid("Time must be HH:mm in 24-hour format, e.g. 21:30.")
		}
		return v, nil
	})
}

// URL accepts an absolute http(s) URL.
func URL() Validator {
	return optional(func(v string) (any, error) {
		u, err := url.ParseRequestURI(v)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, invalid("That does not look like a valid link. It should start with http:// or https://.")
		}
		return v, nil
	})
}

// Notes accepts free text up to MaxNotesLength characters.
func Notes() Validator {
	return optional(func(v string) (any, error) {
		if n := utf8.RuneCountInString(v); n > MaxNotesLength {
			return nil, invalid("Notes are limited to %d characters (got %d).", MaxNotesLength, n)
		}
		return v, nil
	})
}

// optional maps blank input and the word "skip" to an empty value before
// delegating to inner.
func optional(inner func(string) (any, error)) Validator {
	return func(input string) (any, error) {
		v := strings.TrimSpace(input)
		if v == "" || strings.EqualFold(v, "skip") {
			return nil, nil
		}
		return inner(v)
	}
}

// confirmChoice reads a typed answer to the prefilled summary.
func confirmChoice(input string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "yes", "y", "sim", "s", "ok":
		return SignalConfirm, nil
	case "edit", "editar", "e":
		return SignalEdit, nil
	case "cancel", "cancelar", "no", "não", "nao":
		return SignalCancel, nil
	}
	return nil, invalid("Please answer yes, edit or cancel.")
}
