package model

import (
	"fmt"
	"strconv"
	"strings"
)

// TimePeriod is one (code, period) pair of a dataset version's time
// dimension, e.g. ("AY", "2020/2021") for an academic year or
// ("CYQ2", "2021") for a calendar-year quarter. Ordinal is the
// chronological sort key - period strings do not sort lexically in
// chronological order (academic years, quarters), so every comparison
// goes through Ordinal instead.
type TimePeriod struct {
	ID      int64
	Code    string
	Period  string
	Ordinal int64
}

// TimePeriodRef is the (code, period) pair used by queries to
// reference a time period without knowing its internal id.
type TimePeriodRef struct {
	Code   string `json:"code"`
	Period string `json:"period"`
}

// CanonicalString renders the ref in the stable "code|period" form
// used for deterministic sorting of time period lists.
func (r TimePeriodRef) CanonicalString() string {
	return r.Code + "|" + r.Period
}

// subPeriodIndex maps a code suffix to its position within the year.
// Bare year codes (AY, CY, FY, RY, TY) carry no suffix and sit at 0.
var subPeriodIndex = map[string]int64{
	"Q1": 1, "Q2": 2, "Q3": 3, "Q4": 4,
	"T1": 1, "T2": 2, "T1T2": 2, "T3": 3,
	"M1": 1, "M2": 2, "M3": 3, "M4": 4, "M5": 5, "M6": 6,
	"M7": 7, "M8": 8, "M9": 9, "M10": 10, "M11": 11, "M12": 12,
	"W1": 1, "W2": 2,
}

// ParseOrdinal computes the chronological ordinal for a (code, period)
// pair. The ordinal orders periods within a series: year * 100 plus
// the sub-period index. Periods spanning two years ("2020/2021" or
// "2020/21") are keyed by their starting year, matching how the
// source data labels them.
//
// Returns an error when the period's year cannot be parsed; the code
// itself is not validated against a closed list because source
// datasets introduce new identifiers over time.
func ParseOrdinal(code, period string) (int64, error) {
	year, err := startYear(period)
	if err != nil {
		return 0, fmt.Errorf("time period %s %q: %w", code, period, err)
	}

	sub := int64(0)
	for suffix, idx := range subPeriodIndex {
		if strings.HasSuffix(code, suffix) && len(code) > len(suffix) {
			sub = idx
			break
		}
	}

	return year*100 + sub, nil
}

// startYear extracts the starting year from a period string such as
// "2020", "2020/2021" or "2020/21".
func startYear(period string) (int64, error) {
	head := period
	if i := strings.IndexByte(period, '/'); i >= 0 {
		head = period[:i]
	}
	if len(head) != 4 {
		return 0, fmt.Errorf("expected 4-digit year, got %q", head)
	}
	year, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected 4-digit year, got %q", head)
	}
	return year, nil
}

// CompareRefs orders two (code, period) refs: by code, then
// chronologically by ordinal. Refs whose period fails to parse fall
// back to lexical period comparison so sorting never errors.
func CompareRefs(a, b TimePeriodRef) int {
	if a.Code != b.Code {
		if a.Code < b.Code {
			return -1
		}
		return 1
	}

	aOrd, aErr := ParseOrdinal(a.Code, a.Period)
	bOrd, bErr := ParseOrdinal(b.Code, b.Period)
	if aErr != nil || bErr != nil {
		if a.Period < b.Period {
			return -1
		}
		if a.Period > b.Period {
			return 1
		}
		return 0
	}

	if aOrd < bOrd {
		return -1
	}
	if aOrd > bOrd {
		return 1
	}
	return 0
}
