package timeline_test

import (
	"testing"
	"time"

	"vanta-access/internal/model"
	"vanta-access/internal/timeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, 0, 0, time.UTC)
}

func deadline(s string) *string {
	return &s
}

func TestStatus(t *testing.T) {
	rule := model.GuestListRule{ID: "r1", Deadline: deadline("22:00")}

	t.Run("ActiveBeforeDeadline", func(t *testing.T) {
		assert.Equal(t, model.RuleActive, timeline.Status(rule, at(21, 59)))
	})

	t.Run("ExpiredAtDeadline", func(t *testing.T) {
		assert.Equal(t, model.RuleExpired, timeline.Status(rule, at(22, 0)))
	})

	t.Run("AllNight", func(t *testing.T) {
		allNight := model.GuestListRule{ID: "r2"}
		assert.Equal(t, model.RuleActive, timeline.Status(allNight, at(23, 59)))
		assert.Equal(t, model.RuleActive, timeline.Status(allNight, at(0, 0)))
	})

	t.Run("MalformedDeadlineIsExpired", func(t *testing.T) {
		bad := model.GuestListRule{ID: "r3", Deadline: deadline("25:00")}
		assert.Equal(t, model.RuleExpired, timeline.Status(bad, at(12, 0)))
	})

	// 只比較時分，不看日期
	t.Run("IgnoresCalendarDate", func(t *testing.T) {
		nextYear := time.Date(2027, 1, 1, 22, 30, 0, 0, time.UTC)
		assert.Equal(t, model.RuleExpired, timeline.Status(rule, nextYear))
	})
}

func TestParseDeadline(t *testing.T) {
	m, err := timeline.ParseDeadline("01:30")
	require.NoError(t, err)
	assert.Equal(t, 90, m)

	for _, bad := range []string{"", "1", "aa:bb", "12:60", "-1:00"} {
		_, err := timeline.ParseDeadline(bad)
		assert.Error(t, err, bad)
	}
}

func TestSortByTimeline(t *testing.T) {
	rules := []model.GuestListRule{
		{ID: "all-night"},
		{ID: "midnight", Deadline: deadline("23:59")},
		{ID: "early", Deadline: deadline("20:00")},
		{ID: "late", Deadline: deadline("23:00")},
		{ID: "earlier", Deadline: deadline("19:00")},
	}

	sorted := timeline.SortByTimeline(rules, at(21, 0))

	ids := make([]string, len(sorted))
	for i, r := range sorted {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"late", "midnight", "all-night", "earlier", "early"}, ids)
	assert.Equal(t, model.RuleActive, sorted[0].Status)
	assert.Equal(t, model.RuleActive, sorted[2].Status)
	assert.Equal(t, model.RuleExpired, sorted[3].Status)

	// 原 slice 不被修改
	assert.Equal(t, "all-night", rules[0].ID)
}

func TestSortByTimeline_Stable(t *testing.T) {
	rules := []model.GuestListRule{
		{ID: "a", Deadline: deadline("22:00")},
		{ID: "b", Deadline: deadline("22:00")},
		{ID: "c"},
		{ID: "d"},
	}
	sorted := timeline.SortByTimeline(rules, at(18, 0))
	assert.Equal(t, "a", sorted[0].ID)
	assert.Equal(t, "b", sorted[1].ID)
	assert.Equal(t, "c", sorted[2].ID)
	assert.Equal(t, "d", sorted[3].ID)
}

func TestRank(t *testing.T) {
	rules := []model.GuestListRule{
		{ID: "x", Deadline: deadline("10:00")},
		{ID: "y"},
	}
	rank := timeline.Rank(rules, at(12, 0))
	assert.Equal(t, 0, rank["y"])
	assert.Equal(t, 1, rank["x"])
}
