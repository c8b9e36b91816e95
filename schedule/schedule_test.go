package schedule_test

import (
	"testing"
	"time"

	"github.com/saiteja-velpula/sagepick.core/schedule"
)

func TestInterval_FirstFireHonorsStartDelay(t *testing.T) {
	iv := schedule.Interval{Every: 5 * time.Minute, StartDelay: 10 * time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got := iv.Next(time.Time{}, now)
	if want := now.Add(10 * time.Minute); !got.Equal(want) {
		t.Errorf("Next(zero, now) = %v, want %v", got, want)
	}
}

func TestInterval_CadenceAnchoredToLastFire(t *testing.T) {
	iv := schedule.Interval{Every: 5 * time.Minute}
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// A run that finished late does not push the next fire back.
	now := last.Add(90 * time.Second)
	got := iv.Next(last, now)
	if want := last.Add(5 * time.Minute); !got.Equal(want) {
		t.Errorf("Next = %v, want %v (anchored to last fire)", got, want)
	}
}

func TestInterval_SnapsForwardPastMissedOccurrences(t *testing.T) {
	iv := schedule.Interval{Every: 5 * time.Minute}
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "one occurrence missed",
			now:  last.Add(6 * time.Minute),
			want: last.Add(10 * time.Minute),
		},
		{
			name: "several occurrences missed",
			now:  last.Add(23 * time.Minute),
			want: last.Add(25 * time.Minute),
		},
		{
			name: "now exactly on an occurrence moves to the next",
			now:  last.Add(10 * time.Minute),
			want: last.Add(15 * time.Minute),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := iv.Next(last, tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("Next(last, %v) = %v, want %v", tt.now, got, tt.want)
			}
			if !got.After(tt.now) {
				t.Errorf("Next returned %v, not after now %v", got, tt.now)
			}
		})
	}
}

func TestCron_DailyFiresAtWallClockUTC(t *testing.T) {
	c := schedule.MustCron(nil, 2, 0)

	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{
			now:  time.Date(2026, 3, 1, 1, 30, 0, 0, time.UTC),
			want: time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
		},
		{
			now:  time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC),
		},
		{
			now:  time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC),
			want: time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		if got := c.Next(time.Time{}, tt.now); !got.Equal(tt.want) {
			t.Errorf("Next(now=%v) = %v, want %v", tt.now, got, tt.want)
		}
	}
}

func TestCron_WeeklyFiresOnConfiguredDay(t *testing.T) {
	day := time.Sunday
	c := schedule.MustCron(&day, 4, 30)

	// 2026-03-02 is a Monday; the next Sunday 04:30 is 2026-03-08.
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	want := time.Date(2026, 3, 8, 4, 30, 0, 0, time.UTC)
	if got := c.Next(time.Time{}, now); !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestCron_MissedOccurrencesNotReplayed(t *testing.T) {
	c := schedule.MustCron(nil, 2, 0)

	// last was days ago; the result is still the next future instant.
	last := time.Date(2026, 2, 20, 2, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	want := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	if got := c.Next(last, now); !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestNewCron_RejectsOutOfRangeFields(t *testing.T) {
	if _, err := schedule.NewCron(nil, 24, 0); err == nil {
		t.Error("NewCron(hour=24) succeeded, want error")
	}
	if _, err := schedule.NewCron(nil, 0, 60); err == nil {
		t.Error("NewCron(minute=60) succeeded, want error")
	}
}

func TestParseWeekday(t *testing.T) {
	sun := time.Sunday
	fri := time.Friday

	tests := []struct {
		in      string
		want    *time.Weekday
		wantErr bool
	}{
		{"", nil, false},
		{"sunday", &sun, false},
		{"Sun", &sun, false},
		{"0", &sun, false},
		{"friday", &fri, false},
		{"5", &fri, false},
		{"7", nil, true},
		{"someday", nil, true},
	}
	for _, tt := range tests {
		got, err := schedule.ParseWeekday(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseWeekday(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseWeekday(%q) error: %v", tt.in, err)
			continue
		}
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("ParseWeekday(%q) = %v, want nil", tt.in, *got)
		case tt.want != nil && (got == nil || *got != *tt.want):
			t.Errorf("ParseWeekday(%q) = %v, want %v", tt.in, got, *tt.want)
		}
	}
}
