// Package timeline classifies guest-list rules against a wall clock.
//
// Deadlines are "HH:MM" in the event's local time and only the time of day
// of now is compared; the calendar date is ignored.
package timeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"vanta-access/internal/model"
)

const endOfDay = 24 * 60

// ParseDeadline returns minutes since midnight for an "HH:MM" deadline.
func ParseDeadline(deadline string) (int, error) {
	parts := strings.Split(strings.TrimSpace(deadline), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("deadline %q: want HH:MM", deadline)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("deadline %q: bad hour", deadline)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("deadline %q: bad minute", deadline)
	}
	return h*60 + m, nil
}

// Status returns ACTIVE for rules without a deadline. A malformed deadline
// is reported as EXPIRED so a bad edit never widens a benefit.
func Status(rule model.GuestListRule, now time.Time) model.RuleStatus {
	if rule.Deadline == nil {
		return model.RuleActive
	}
	deadline, err := ParseDeadline(*rule.Deadline)
	if err != nil {
		return model.RuleExpired
	}
	if now.Hour()*60+now.Minute() >= deadline {
		return model.RuleExpired
	}
	return model.RuleActive
}

func sortKey(rule model.GuestListRule) int {
	if rule.Deadline == nil {
		return endOfDay
	}
	d, err := ParseDeadline(*rule.Deadline)
	if err != nil {
		return endOfDay + 1
	}
	return d
}

// SortByTimeline returns a copy ordered ACTIVE before EXPIRED, then by
// ascending deadline. Rules without a deadline close the ACTIVE group.
func SortByTimeline(rules []model.GuestListRule, now time.Time) []model.RuleView {
	views := make([]model.RuleView, len(rules))
	for i, r := range rules {
		views[i] = model.RuleView{GuestListRule: r, Status: Status(r, now)}
	}
	sort.SliceStable(views, func(i, j int) bool {
		ai, aj := views[i].Status == model.RuleActive, views[j].Status == model.RuleActive
		if ai != aj {
			return ai
		}
		return sortKey(views[i].GuestListRule) < sortKey(views[j].GuestListRule)
	})
	return views
}

// Rank maps rule id to its position in the timeline order.
func Rank(rules []model.GuestListRule, now time.Time) map[string]int {
	ranked := SortByTimeline(rules, now)
	out := make(map[string]int, len(ranked))
	for i, r := range ranked {
		out[r.ID] = i
	}
	return out
}
