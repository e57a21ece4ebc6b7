package availability

import (
	"context"
	"fmt"
	"time"

	"sentinel/pkg/config"
	"sentinel/pkg/logger"
	"sentinel/pkg/model"
)

// BusyIntervalSource yields the active appointments that occupy calendar
// time inside a window. The appointment repository satisfies it.
type BusyIntervalSource interface {
	FindActiveOverlapping(ctx context.Context, start, end time.Time, excludeID string) ([]*model.Appointment, error)
}

// OverrideSource yields per-day availability overrides keyed by day.
type OverrideSource interface {
	FindRange(ctx context.Context, fromDay, toDay string) (map[string]*model.AvailabilityOverride, error)
}

type window struct {
	start time.Time
	end   time.Time
}

// Scanner walks the slot grid looking for the first free interval of the
// requested duration inside business hours.
type Scanner struct {
	appointments BusyIntervalSource
	overrides    OverrideSource
	cfg          *config.Config
	logger       *logger.Logger
}

func NewScanner(appointments BusyIntervalSource, overrides OverrideSource, cfg *config.Config, log *logger.Logger) *Scanner {
	return &Scanner{
		appointments: appointments,
		overrides:    overrides,
		cfg:          cfg,
		logger:       log,
	}
}

// NextAvailable returns the first slot boundary at or after requestedStart
// that fits durationMinutes, or nil when the whole horizon is booked.
// excludeID keeps the appointment being modified out of its own busy set.
func (s *Scanner) NextAvailable(ctx context.Context, requestedStart time.Time, durationMinutes int, excludeID string) (*time.Time, error) {
	requestedStart = requestedStart.UTC()
	horizonEnd := requestedStart.Add(time.Duration(s.cfg.HorizonDays) * 24 * time.Hour)

	busy, err := s.appointments.FindActiveOverlapping(ctx, requestedStart, horizonEnd, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load busy intervals: %w", err)
	}

	firstDay := startOfDay(requestedStart)
	lastDay := startOfDay(horizonEnd)
	overrides, err := s.overrides.FindRange(ctx, firstDay.Format(model.DayKeyLayout), lastDay.Format(model.DayKeyLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to load availability overrides: %w", err)
	}

	duration := time.Duration(durationMinutes) * time.Minute
	slot := time.Duration(s.cfg.SlotMinutes) * time.Minute

	// Horizon is inclusive: day offset 0 through HorizonDays.
	for offset := 0; offset <= s.cfg.HorizonDays; offset++ {
		day := firstDay.AddDate(0, 0, offset)

		win, open := s.windowForDay(day, overrides[day.Format(model.DayKeyLayout)])
		if !open {
			continue
		}

		dayStart := win.start
		if offset == 0 && requestedStart.After(dayStart) {
			dayStart = requestedStart
		}

		for cursor := roundUpToBoundary(dayStart, slot); !cursor.Add(duration).After(win.end); cursor = cursor.Add(slot) {
			if isFree(cursor, cursor.Add(duration), busy) {
				found := cursor
				s.logger.Debug("Found available slot",
					"slot", found,
					"duration_minutes", durationMinutes,
					"days_ahead", offset,
				)
				return &found, nil
			}
		}
	}

	return nil, nil
}

// windowForDay resolves the bookable window for a calendar day. A blocked
// override closes the day; a custom window replaces the default hours.
func (s *Scanner) windowForDay(day time.Time, override *model.AvailabilityOverride) (window, bool) {
	if override != nil && override.IsBlocked {
		return window{}, false
	}

	if override != nil && override.CustomStartTime != "" && override.CustomEndTime != "" {
		start, okStart := atClock(day, override.CustomStartTime)
		end, okEnd := atClock(day, override.CustomEndTime)
		if okStart && okEnd {
			return window{start: start, end: end}, true
		}
		s.logger.Warn("Ignoring malformed availability override",
			"date", override.Date,
			"custom_start_time", override.CustomStartTime,
			"custom_end_time", override.CustomEndTime,
		)
	}

	return window{
		start: day.Add(time.Duration(s.cfg.OpenHour)*time.Hour + time.Duration(s.cfg.OpenMinute)*time.Minute),
		end:   day.Add(time.Duration(s.cfg.CloseHour)*time.Hour + time.Duration(s.cfg.CloseMinute)*time.Minute),
	}, true
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func roundUpToBoundary(t time.Time, slot time.Duration) time.Time {
	truncated := t.Truncate(slot)
	if truncated.Equal(t) {
		return t
	}
	return truncated.Add(slot)
}

// atClock parses "HH:MM" onto the given day.
func atClock(day time.Time, clock string) (time.Time, bool) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, false
	}
	return day.Add(time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute), true
}

func isFree(start, end time.Time, busy []*model.Appointment) bool {
	for _, appointment := range busy {
		if model.Overlaps(start, end, appointment.StartTime, appointment.EndTime) {
			return false
		}
	}
	return true
}
