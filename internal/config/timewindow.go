package config

import "time"

// Contains reports whether the wall-clock time of t falls inside the window.
// Windows with malformed start/end strings never match.
func (w TimeWindow) Contains(t time.Time) bool {
	start, err := time.Parse("15:04", w.Start)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", w.End)
	if err != nil {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	return minute >= start.Hour()*60+start.Minute() && minute <= end.Hour()*60+end.Minute()
}

// FindWindow returns the first window containing t, with ok=false when none do.
func FindWindow(windows []TimeWindow, t time.Time) (TimeWindow, bool) {
	for _, w := range windows {
		if w.Contains(t) {
			return w, true
		}
	}
	return TimeWindow{}, false
}
