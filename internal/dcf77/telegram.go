// Package dcf77 decodes the DCF77 longwave time signal.
//
// A Decoder turns a 10ms stream of pin levels into bits and minute
// boundaries; a Telegram interprets the 59 bits of one minute. This package
// has no external dependencies and performs no I/O.
package dcf77

import (
	"errors"
	"fmt"
)

// TelegramBits is the number of bits transmitted per minute (second 59 carries no pulse).
const TelegramBits = 59

// Validation sentinels. Checked accessors wrap them in a *FieldError.
var (
	ErrStartBit = errors.New("start bit set")
	ErrCEST     = errors.New("CEST/CET flags not complementary")
	ErrParity   = errors.New("parity mismatch")
	ErrRange    = errors.New("value out of range")
)

// FieldError reports which telegram field failed validation.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("dcf77: %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Bit positions within a telegram.
const (
	bitStart      = 0
	bitCEST       = 17
	bitCET        = 18
	bitLeapSecond = 19
	bitTimeStart  = 20
	bitMinutes    = 21
	bitMinutesPar = 28
	bitHours      = 29
	bitHoursPar   = 35
	bitDay        = 36
	bitWeekday    = 42
	bitMonth      = 45
	bitYear       = 50
	bitDatePar    = 58
	yearOffset    = 2000
	maxYear       = 2100
	maxMonth      = 12
	maxDay        = 31
	maxWeekday    = 7
	maxHours      = 23
	maxMinutes    = 59
)

// field is a BCD-coded run of bits starting at first.
type field struct {
	first   int
	weights []uint8
}

var (
	minutesField = field{bitMinutes, []uint8{1, 2, 4, 8, 10, 20, 40}}
	hoursField   = field{bitHours, []uint8{1, 2, 4, 8, 10, 20}}
	dayField     = field{bitDay, []uint8{1, 2, 4, 8, 10, 20}}
	weekdayField = field{bitWeekday, []uint8{1, 2, 4}}
	monthField   = field{bitMonth, []uint8{1, 2, 4, 8, 10}}
	yearField    = field{bitYear, []uint8{1, 2, 4, 8, 10, 20, 40, 80}}
)

func (f field) last() int {
	return f.first + len(f.weights) - 1
}

// Telegram is one minute of DCF77 data, bit 0 being the first bit received.
// Only bits 0..58 are meaningful.
type Telegram uint64

// NewTelegram wraps a raw accumulator value, e.g. Decoder.RawData.
func NewTelegram(raw uint64) Telegram {
	return Telegram(raw)
}

// Bit reports whether bit i is set.
func (t Telegram) Bit(i int) bool {
	if i < 0 || i > 63 {
		return false
	}
	return uint64(t)&(1<<uint(i)) != 0
}

func (t Telegram) sum(f field) uint16 {
	var v uint16
	for i, w := range f.weights {
		if t.Bit(f.first + i) {
			v += uint16(w)
		}
	}
	return v
}

// parity returns the XOR of bits first..last inclusive.
func (t Telegram) parity(first, last int) bool {
	p := false
	for i := first; i <= last; i++ {
		if t.Bit(i) {
			p = !p
		}
	}
	return p
}

// ValidateStart checks that the start-of-minute bit is zero.
func (t Telegram) ValidateStart() error {
	if t.Bit(bitStart) {
		return &FieldError{Field: "start", Err: ErrStartBit}
	}
	return nil
}

// CESTUnchecked reports whether summer time is signalled, without checking bit 18.
func (t Telegram) CESTUnchecked() bool {
	return t.Bit(bitCEST)
}

// CEST reports whether summer time is signalled. Bit 18 must be the complement of bit 17.
func (t Telegram) CEST() (bool, error) {
	cest := t.CESTUnchecked()
	if t.Bit(bitCET) == cest {
		return false, &FieldError{Field: "cest", Err: ErrCEST}
	}
	return cest, nil
}

// LeapSecondAnnounced returns bit 19. It is not validated.
func (t Telegram) LeapSecondAnnounced() bool {
	return t.Bit(bitLeapSecond)
}

// TimeStartMarker returns bit 20, which the transmitter always sets. It is not validated.
func (t Telegram) TimeStartMarker() bool {
	return t.Bit(bitTimeStart)
}

// MinutesUnchecked returns the BCD value of bits 21..27 without range or
// parity checks.
func (t Telegram) MinutesUnchecked() uint8 {
	return uint8(t.sum(minutesField))
}

// Minutes returns the minute of the hour, checking range and parity bit 28.
func (t Telegram) Minutes() (uint8, error) {
	m := t.MinutesUnchecked()
	if m > maxMinutes {
		return 0, &FieldError{Field: "minutes", Err: ErrRange}
	}
	if t.parity(minutesField.first, minutesField.last()) != t.Bit(bitMinutesPar) {
		return 0, &FieldError{Field: "minutes", Err: ErrParity}
	}
	return m, nil
}

// HoursUnchecked returns the BCD value of bits 29..34 without range or parity
// checks.
func (t Telegram) HoursUnchecked() uint8 {
	return uint8(t.sum(hoursField))
}

// Hours returns the hour of the day, checking range and parity bit 35.
func (t Telegram) Hours() (uint8, error) {
	h := t.HoursUnchecked()
	if h > maxHours {
		return 0, &FieldError{Field: "hours", Err: ErrRange}
	}
	if t.parity(hoursField.first, hoursField.last()) != t.Bit(bitHoursPar) {
		return 0, &FieldError{Field: "hours", Err: ErrParity}
	}
	return h, nil
}

// DayUnchecked returns the day of the month from bits 36..41.
func (t Telegram) DayUnchecked() uint8 {
	return uint8(t.sum(dayField))
}

// Day returns the day of the month. There is no parity bit for the day alone;
// only the range is checked.
func (t Telegram) Day() (uint8, error) {
	d := t.DayUnchecked()
	if d > maxDay {
		return 0, &FieldError{Field: "day", Err: ErrRange}
	}
	return d, nil
}

// WeekdayUnchecked returns the day of the week, 0 meaning Monday.
func (t Telegram) WeekdayUnchecked() uint8 {
	return uint8(t.sum(weekdayField))
}

// MonthUnchecked returns the month from bits 45..49.
func (t Telegram) MonthUnchecked() uint8 {
	return uint8(t.sum(monthField))
}

// YearUnchecked returns the year including the +2000 century offset.
func (t Telegram) YearUnchecked() uint16 {
	return yearOffset + t.sum(yearField)
}

// Date is the calendar part of a telegram. Weekday 0 is Monday; the field
// is three bits wide, so 7 passes the range check but names no day.
type Date struct {
	Year    uint16
	Month   uint8
	Day     uint8
	Weekday uint8
}

// ISOWeekday returns the ISO 8601 weekday (1 = Monday .. 7 = Sunday), or 0 when
// Weekday is 7.
func (d Date) ISOWeekday() int {
	if d.Weekday > 6 {
		return 0
	}
	return int(d.Weekday) + 1
}

// Date returns year, month, day and weekday after checking the date parity
// bit 58 over bits 36..57 and the plausible range of each value.
func (t Telegram) Date() (Date, error) {
	if t.parity(bitDay, yearField.last()) != t.Bit(bitDatePar) {
		return Date{}, &FieldError{Field: "date", Err: ErrParity}
	}
	d := Date{
		Year:    t.YearUnchecked(),
		Month:   t.MonthUnchecked(),
		Day:     t.DayUnchecked(),
		Weekday: t.WeekdayUnchecked(),
	}
	if d.Year > maxYear || d.Month > maxMonth || d.Day > maxDay || d.Weekday > maxWeekday {
		return Date{}, &FieldError{Field: "date", Err: ErrRange}
	}
	return d, nil
}
