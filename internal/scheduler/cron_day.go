package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// domMatcher answers whether a given day-of-month expression matches a
// calendar date. Ported from original_source/scheduler.py's
// parse_days_of_month/check_day_match/get_last_day_offset: a day expression
// is either "*", a comma-separated list of day numbers, or an "L"/"L-N"
// token counting back from the last day of the month.
type domMatcher struct {
	any    bool
	days   map[int]struct{}
	lastN  int
	isLast bool
}

func parseDayOfMonth(expr string) (domMatcher, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "*" {
		return domMatcher{any: true}, nil
	}

	if strings.HasPrefix(expr, "L") {
		offset := 0
		if strings.Contains(expr, "-") {
			parts := strings.SplitN(expr, "-", 2)
			n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil {
				return domMatcher{}, fmt.Errorf("scheduler: invalid L-N day expression %q: %w", expr, err)
			}
			offset = n
		}
		return domMatcher{isLast: true, lastN: offset}, nil
	}

	days := make(map[int]struct{})
	for _, tok := range strings.Split(expr, ",") {
		tok = strings.TrimSpace(tok)
		n, err := strconv.Atoi(tok)
		if err != nil {
			return domMatcher{}, fmt.Errorf("scheduler: invalid day-of-month token %q: %w", tok, err)
		}
		days[n] = struct{}{}
	}
	return domMatcher{days: days}, nil
}

func lastDayOffset(t time.Time, offset int) int {
	firstOfNextMonth := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNextMonth.AddDate(0, 0, -1).Day()
	return lastDay - offset
}

func (m domMatcher) match(t time.Time) bool {
	if m.any {
		return true
	}
	if m.isLast {
		return t.Day() == lastDayOffset(t, m.lastN)
	}
	_, ok := m.days[t.Day()]
	return ok
}
