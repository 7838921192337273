package filing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - The monthly tax period every record is keyed by
// =============================================================================

// Period is a calendar month. It is never stored on its own; it is always a
// component of a (client, period[, kind]) key.
//
// Text form is "YYYY-MM", e.g. "2025-03".
type Period struct {
	Month time.Month
	Year  int
}

func NewPeriod(year int, month time.Month) (Period, error) {
	p := Period{Month: month, Year: year}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// MustPeriod is NewPeriod for literals known to be valid.
func MustPeriod(year int, month time.Month) Period {
	p, err := NewPeriod(year, month)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Period) Validate() error {
	if p.Month < time.January || p.Month > time.December {
		return fmt.Errorf("%w: month %d", ErrInvalidPeriod, p.Month)
	}
	if p.Year <= 0 {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, p.Year)
	}
	return nil
}

func ParsePeriod(s string) (Period, error) {
	year, month, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Period{}, fmt.Errorf("%w: %q (use YYYY-MM)", ErrInvalidPeriod, s)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q (use YYYY-MM)", ErrInvalidPeriod, s)
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q (use YYYY-MM)", ErrInvalidPeriod, s)
	}
	return NewPeriod(y, time.Month(m))
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Period) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Month: time.January, Year: p.Year + 1}
	}
	return Period{Month: p.Month + 1, Year: p.Year}
}

func (p Period) Previous() Period {
	if p.Month == time.January {
		return Period{Month: time.December, Year: p.Year - 1}
	}
	return Period{Month: p.Month - 1, Year: p.Year}
}

// CurrentFilingPeriod returns the period normally being worked on at now:
// the month before the current one.
func CurrentFilingPeriod(now time.Time) Period {
	return Period{Month: now.Month(), Year: now.Year()}.Previous()
}

// =============================================================================
// FINANCIAL YEAR - April to March
// =============================================================================

const fiscalYearStartMonth = time.April

// FinancialYear is identified by the calendar year it starts in.
type FinancialYear struct {
	StartYear int
}

// FinancialYear returns the financial year a period belongs to. Months from
// April onwards belong to year–(year+1); January to March to (year–1)–year.
func (p Period) FinancialYear() FinancialYear {
	if p.Month >= fiscalYearStartMonth {
		return FinancialYear{StartYear: p.Year}
	}
	return FinancialYear{StartYear: p.Year - 1}
}

// Label formats the year as "2025-26".
func (fy FinancialYear) Label() string {
	return fmt.Sprintf("%d-%02d", fy.StartYear, (fy.StartYear+1)%100)
}

func (fy FinancialYear) Contains(p Period) bool {
	return p.FinancialYear() == fy
}

// Periods returns the twelve periods of the year, April first.
func (fy FinancialYear) Periods() []Period {
	periods := make([]Period, 0, 12)
	p := Period{Month: fiscalYearStartMonth, Year: fy.StartYear}
	for i := 0; i < 12; i++ {
		periods = append(periods, p)
		p = p.Next()
	}
	return periods
}

// =============================================================================
// DUE DATES AND DISPLAY STATUS
// =============================================================================

// DueDate returns the statutory due date of a return for the period: day 11
// (outward) or day 20 (liability) of the following month, at midnight in loc.
// A December period rolls into January of the next year.
func (p Period) DueDate(kind ReturnKind, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	next := p.Next()
	return time.Date(next.Year, next.Month, kind.dueDay(), 0, 0, 0, 0, loc)
}

type DueColor string

const (
	DueGreen  DueColor = "green"  // locked
	DueBlue   DueColor = "blue"   // approved, waiting to be filed
	DueRed    DueColor = "red"    // past due
	DueYellow DueColor = "yellow" // open, not yet due
)

// DueColorFor projects a record status onto a display color. It is computed
// from now on every call and never written back.
func DueColorFor(kind ReturnKind, p Period, status Status, now time.Time) DueColor {
	switch status {
	case StatusLocked:
		return DueGreen
	case StatusApproved:
		return DueBlue
	}
	if now.After(p.DueDate(kind, now.Location())) {
		return DueRed
	}
	return DueYellow
}
