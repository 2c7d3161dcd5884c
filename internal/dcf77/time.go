package dcf77

import (
	"fmt"
	"time"
)

var (
	zoneCET  = time.FixedZone("CET", 1*60*60)
	zoneCEST = time.FixedZone("CEST", 2*60*60)
)

// Time is a fully validated telegram.
type Time struct {
	Date
	Hour   uint8
	Minute uint8
	CEST   bool
}

// Decode runs every checked accessor and returns the broadcast time. The first
// failing check is returned.
func (t Telegram) Decode() (Time, error) {
	if err := t.ValidateStart(); err != nil {
		return Time{}, err
	}
	cest, err := t.CEST()
	if err != nil {
		return Time{}, err
	}
	minute, err := t.Minutes()
	if err != nil {
		return Time{}, err
	}
	hour, err := t.Hours()
	if err != nil {
		return Time{}, err
	}
	date, err := t.Date()
	if err != nil {
		return Time{}, err
	}
	return Time{Date: date, Hour: hour, Minute: minute, CEST: cest}, nil
}

// Location returns the fixed zone (CET or CEST) the time was broadcast in.
func (t Time) Location() *time.Location {
	if t.CEST {
		return zoneCEST
	}
	return zoneCET
}

// Time converts to a time.Time at the start of the announced minute.
// Out-of-range days (e.g. 31 February) are normalised by time.Date.
func (t Time) Time() time.Time {
	return time.Date(int(t.Year), time.Month(t.Month), int(t.Day),
		int(t.Hour), int(t.Minute), 0, 0, t.Location())
}

// String formats t for logs, e.g. "2026-10-19 09:41 CEST (Mon)". Weekday 7
// prints as "?".
func (t Time) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d %s (%s)",
		t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Location(), weekdayName(t.Weekday))
}

func weekdayName(w uint8) string {
	names := [...]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
	if int(w) < len(names) {
		return names[w]
	}
	return "?"
}

// TimeFrom returns the DCF77 representation of tm, converted to CET or CEST
// depending on whether Central European summer time applies at that instant.
func TimeFrom(tm time.Time) Time {
	local := tm.In(zoneCET)
	cest := isSummerTime(tm)
	if cest {
		local = tm.In(zoneCEST)
	}
	return Time{
		Date: Date{
			Year:    uint16(local.Year()),
			Month:   uint8(local.Month()),
			Day:     uint8(local.Day()),
			Weekday: uint8((int(local.Weekday()) + 6) % 7),
		},
		Hour:   uint8(local.Hour()),
		Minute: uint8(local.Minute()),
		CEST:   cest,
	}
}

// isSummerTime applies the EU rule: from 01:00 UTC on the last Sunday of March
// until 01:00 UTC on the last Sunday of October.
func isSummerTime(tm time.Time) bool {
	u := tm.UTC()
	start := lastSunday(u.Year(), time.March).Add(time.Hour)
	end := lastSunday(u.Year(), time.October).Add(time.Hour)
	return !u.Before(start) && u.Before(end)
}

func lastSunday(year int, month time.Month) time.Time {
	d := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// Encode builds the telegram a transmitter would send for t, with bit 20 set
// and all parity bits correct. Fields are encoded as given; no range checks.
func Encode(t Time) Telegram {
	var raw uint64
	put := func(f field, v uint16) {
		tens := v / 10 * 10
		ones := v % 10
		// Weights are ascending; fill the tens group first, then the units.
		for i := len(f.weights) - 1; i >= 0; i-- {
			w := uint16(f.weights[i])
			if w >= 10 {
				if tens >= w {
					tens -= w
					raw |= 1 << uint(f.first+i)
				}
				continue
			}
			if ones >= w {
				ones -= w
				raw |= 1 << uint(f.first+i)
			}
		}
	}
	setParity := func(first, last, bit int) {
		if Telegram(raw).parity(first, last) {
			raw |= 1 << uint(bit)
		}
	}

	if t.CEST {
		raw |= 1 << bitCEST
	} else {
		raw |= 1 << bitCET
	}
	raw |= 1 << bitTimeStart

	put(minutesField, uint16(t.Minute))
	setParity(minutesField.first, minutesField.last(), bitMinutesPar)
	put(hoursField, uint16(t.Hour))
	setParity(hoursField.first, hoursField.last(), bitHoursPar)

	put(dayField, uint16(t.Day))
	put(weekdayField, uint16(t.Weekday))
	put(monthField, uint16(t.Month))
	put(yearField, t.Year%100)
	setParity(bitDay, yearField.last(), bitDatePar)

	return Telegram(raw)
}
