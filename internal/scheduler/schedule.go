package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/veselov/unilight/internal/light"
)

// Action target types.
const (
	TargetLight = "light"
	TargetGroup = "group"
	TargetAll   = "all"
)

// ActionSetState is the only action type currently defined.
const ActionSetState = "set_state"

// Symbolic day selections.
const (
	DaysAll      = "all"
	DaysWeekdays = "weekdays"
	DaysWeekend  = "weekend"
)

// Days selects the weekdays a schedule fires on. Either an explicit set of
// Monday-first indices (0-6) or one of the symbolic forms. The JSON encoding
// is a bare array or a bare string, matching the stored schedule documents.
type Days struct {
	Set      []int
	Symbolic string
}

// AllDays is the default selection when a schedule names no days.
func AllDays() *Days {
	return &Days{Symbolic: DaysAll}
}

// MarshalJSON renders the set form as an array and the symbolic form as a
// string.
func (d Days) MarshalJSON() ([]byte, error) {
	if d.Set != nil {
		return json.Marshal(d.Set)
	}
	return json.Marshal(d.Symbolic)
}

// UnmarshalJSON accepts either encoding.
func (d *Days) UnmarshalJSON(data []byte) error {
	var set []int
	if err := json.Unmarshal(data, &set); err == nil {
		for _, idx := range set {
			if idx < 0 || idx > 6 {
				return fmt.Errorf("weekday index %d out of range", idx)
			}
		}
		d.Set = set
		d.Symbolic = ""
		return nil
	}

	var symbolic string
	if err := json.Unmarshal(data, &symbolic); err != nil {
		return fmt.Errorf("days must be a weekday array or a symbolic string")
	}
	switch symbolic {
	case DaysAll, DaysWeekdays, DaysWeekend:
		d.Set = nil
		d.Symbolic = symbolic
		return nil
	default:
		return fmt.Errorf("unknown symbolic days value %q", symbolic)
	}
}

// Matches reports whether the selection covers the given weekday.
func (d Days) Matches(wd time.Weekday) bool {
	if d.Set != nil {
		// Monday-first index: Monday=0 .. Sunday=6.
		idx := (int(wd) + 6) % 7
		for _, v := range d.Set {
			if v == idx {
				return true
			}
		}
		return false
	}

	switch d.Symbolic {
	case DaysWeekdays:
		return wd >= time.Monday && wd <= time.Friday
	case DaysWeekend:
		return wd == time.Saturday || wd == time.Sunday
	default: // all
		return true
	}
}

// Action is one step of a schedule firing: a canonical-state patch aimed at a
// light, a group, or every tracked device. The all target honors only the on
// flag of the patch.
type Action struct {
	Type       string      `json:"type"`
	TargetType string      `json:"target_type"`
	TargetID   string      `json:"target_id,omitempty"`
	Protocol   string      `json:"protocol,omitempty"` // light targets only
	State      light.State `json:"state"`
}

// Schedule is a time-of-day trigger with optional day-of-week or one-shot
// date constraints. Time is HH:MM in the host's local wall clock; Date, when
// set, is YYYY-MM-DD and mutually exclusive with Days.
type Schedule struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Time    string     `json:"time"`
	Days    *Days      `json:"days,omitempty"`
	Date    string     `json:"date,omitempty"`
	Enabled bool       `json:"enabled"`
	LastRun *time.Time `json:"last_run,omitempty"`
	Actions []Action   `json:"actions"`
}

// Validate rejects malformed schedules before any mutation.
func (s Schedule) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if _, err := time.Parse("15:04", s.Time); err != nil {
		return fmt.Errorf("invalid schedule time %q: %w", s.Time, err)
	}
	if s.Days != nil && s.Days.Symbolic == "" && len(s.Days.Set) == 0 {
		return fmt.Errorf("days must name at least one weekday")
	}
	if s.Date != "" {
		if s.Days != nil {
			return fmt.Errorf("days and date are mutually exclusive")
		}
		if _, err := time.Parse("2006-01-02", s.Date); err != nil {
			return fmt.Errorf("invalid schedule date %q: %w", s.Date, err)
		}
	}
	if len(s.Actions) == 0 {
		return fmt.Errorf("schedule needs at least one action")
	}
	for i, a := range s.Actions {
		if a.Type != ActionSetState {
			return fmt.Errorf("action %d: unknown type %q", i, a.Type)
		}
		switch a.TargetType {
		case TargetLight:
			if a.TargetID == "" || a.Protocol == "" {
				return fmt.Errorf("action %d: light target needs protocol and target_id", i)
			}
		case TargetGroup:
			if a.TargetID == "" {
				return fmt.Errorf("action %d: group target needs target_id", i)
			}
		case TargetAll:
		default:
			return fmt.Errorf("action %d: unknown target type %q", i, a.TargetType)
		}
	}
	return nil
}

// matchesDay reports whether the schedule's day constraints cover t. A
// schedule with neither days nor date fires every day.
func (s Schedule) matchesDay(t time.Time) bool {
	if s.Date != "" {
		d, err := time.ParseInLocation("2006-01-02", s.Date, t.Location())
		if err != nil {
			return false
		}
		return d.Year() == t.Year() && d.Month() == t.Month() && d.Day() == t.Day()
	}
	if s.Days != nil {
		return s.Days.Matches(t.Weekday())
	}
	return true
}

// shouldTrigger is the authoritative minute-precision trigger decision.
func (s Schedule) shouldTrigger(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if now.Format("15:04") != s.Time {
		return false
	}
	if !s.matchesDay(now) {
		return false
	}
	// Debounce: a firing within the last minute means this is the same
	// matching minute seen through tick jitter.
	if s.LastRun != nil {
		if diff := now.Sub(*s.LastRun); diff >= 0 && diff < time.Minute {
			return false
		}
	}
	return true
}

// dueSoon is the looser notification predicate: the schedule would fire
// within the next 60 seconds. Not part of the trigger decision.
func (s Schedule) dueSoon(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	t, err := time.Parse("15:04", s.Time)
	if err != nil {
		return false
	}
	fire := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	diff := fire.Sub(now)
	if diff <= 0 || diff > time.Minute {
		return false
	}
	return s.matchesDay(fire)
}
