package domain

import "time"

const slotLayout = "2006-01-02"

// Window is the period a reservation occupies its units, [Start, End). Holds
// are tracked per UTC day, so overlap is decided on whole days.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewWindow(start, end time.Time) Window {
	return Window{Start: start.UTC(), End: end.UTC()}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// bounds returns the first covered day and the first day after the window.
// A window shorter than a day still covers its start day.
func (w Window) bounds() (time.Time, time.Time) {
	s := startOfDay(w.Start)
	e := startOfDay(w.End)
	if !e.After(s) {
		e = s.AddDate(0, 0, 1)
	}
	return s, e
}

// Slots lists the covered days as YYYY-MM-DD keys.
func (w Window) Slots() []string {
	s, e := w.bounds()
	var slots []string
	for d := s; d.Before(e); d = d.AddDate(0, 0, 1) {
		slots = append(slots, d.Format(slotLayout))
	}
	return slots
}

func (w Window) Overlaps(o Window) bool {
	s1, e1 := w.bounds()
	s2, e2 := o.bounds()
	return s1.Before(e2) && s2.Before(e1)
}

// Nights is the number of covered days.
func (w Window) Nights() int {
	s, e := w.bounds()
	return int(e.Sub(s).Hours() / 24)
}

func (w Window) Equal(o Window) bool {
	return w.Start.Equal(o.Start) && w.End.Equal(o.End)
}
