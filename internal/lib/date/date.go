// Package date содержит календарную арифметику с точностью до дня.
// Время суток не учитывается: дата представляется как полночь UTC,
// а перевод момента времени в дату выполняется в одной опорной временной зоне.
package date

import "time"

// Layout формат даты при хранении и передаче.
const Layout = "2006-01-02"

// Calendar переводит моменты времени в календарные даты опорной зоны.
type Calendar struct {
	loc *time.Location
}

// NewCalendar создаёт календарь для зоны loc. Если loc == nil, используется UTC.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// Location возвращает опорную зону календаря.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Day возвращает календарную дату момента t в опорной зоне.
func (c Calendar) Day(t time.Time) time.Time {
	t = t.In(c.Location())
	return Of(t.Year(), t.Month(), t.Day())
}

// Of собирает дату из года, месяца и дня.
func Of(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// AddDays сдвигает дату на n дней.
func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// Format возвращает дату в формате Layout.
func Format(d time.Time) string {
	return d.Format(Layout)
}

// Parse разбирает дату в формате Layout.
func Parse(s string) (time.Time, error) {
	return time.ParseInLocation(Layout, s, time.UTC)
}
