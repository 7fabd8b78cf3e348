package agenda

import (
	"errors"
	"testing"
	"time"
)

var pst = time.FixedZone("", -8*60*60)

func mustAppt(t *testing.T, date, begin, end, description string) Appointment {
	t.Helper()
	d, err := ParseDate(date)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", date, err)
	}
	b, err := ParseClock(begin)
	if err != nil {
		t.Fatalf("ParseClock(%q): %v", begin, err)
	}
	e, err := ParseClock(end)
	if err != nil {
		t.Fatalf("ParseClock(%q): %v", end, err)
	}
	appt, err := On(d, b, e, pst, description)
	if err != nil {
		t.Fatalf("On(%s, %s, %s): %v", date, begin, end, err)
	}
	return appt
}

func TestNewRejectsInvertedInterval(t *testing.T) {
	begin := time.Date(2016, 12, 11, 11, 0, 0, 0, pst)
	_, err := New(begin, begin.Add(-time.Hour), "meeting")
	if !errors.Is(err, ErrInverted) {
		t.Fatalf("expected ErrInverted, got %v", err)
	}
}

func TestNewRejectsMultiDayInterval(t *testing.T) {
	begin := time.Date(2016, 12, 11, 23, 0, 0, 0, pst)
	_, err := New(begin, begin.Add(2*time.Hour), "late")
	if !errors.Is(err, ErrSpansDays) {
		t.Fatalf("expected ErrSpansDays, got %v", err)
	}
}

func TestNewTruncatesToMinute(t *testing.T) {
	begin := time.Date(2016, 12, 11, 9, 0, 42, 0, pst)
	appt, err := New(begin, begin.Add(30*time.Minute), "standup")
	if err != nil {
		t.Fatal(err)
	}
	if appt.Begin.Second() != 0 || appt.End.Second() != 0 {
		t.Errorf("expected minute granularity, got %s - %s", appt.Begin, appt.End)
	}
}

func TestLineRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		appt Appointment
		desc string
	}{
		{"fixed offset", mustAppt(t, "2016-12-11", "10:00", "11:00", "meeting"), "meeting"},
		{"padded description", mustAppt(t, "2016-12-11", "09:30", "09:45", "  team sync  "), "team sync"},
		{"utc", Appointment{
			Begin:       time.Date(2017, 1, 2, 8, 0, 0, 0, time.UTC),
			End:         time.Date(2017, 1, 2, 17, 0, 0, 0, time.UTC),
			Description: FreeTime,
		}, FreeTime},
		{"empty interval", mustAppt(t, "2016-12-12", "12:00", "12:00", "marker"), "marker"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseLine(tc.appt.String())
			if err != nil {
				t.Fatalf("ParseLine(%q): %v", tc.appt.String(), err)
			}
			want := tc.appt.WithDescription(tc.desc)
			if !got.Equal(want) {
				t.Errorf("round trip mismatch:\n got %s\nwant %s", got, want)
			}
			if got.Date() != want.Date() {
				t.Errorf("date mismatch: got %s want %s", got.Date(), want.Date())
			}
		})
	}
}

func TestStringFormat(t *testing.T) {
	appt := mustAppt(t, "2016-12-11", "10:00", "11:00", "meeting")
	want := "2016-12-11 10:00-08:00 11:00-08:00 | meeting"
	if got := appt.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParseLineWithoutDelimiter(t *testing.T) {
	appt, err := ParseLine("2016-12-11 10:00Z 11:30Z design review")
	if err != nil {
		t.Fatal(err)
	}
	if appt.Description != "design review" {
		t.Errorf("description = %q", appt.Description)
	}
	if appt.Duration() != 90*time.Minute {
		t.Errorf("duration = %s", appt.Duration())
	}
}

func TestParseLineErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		cause error
	}{
		{"empty", "", nil},
		{"too few fields", "2016-12-11 10:00Z | meeting", nil},
		{"too many fields", "2016-12-11 10:00Z 11:00Z 12:00Z | meeting", nil},
		{"bad date", "2016-13-11 10:00Z 11:00Z | meeting", nil},
		{"bad begin", "2016-12-11 25:00Z 11:00Z | meeting", nil},
		{"bad end", "2016-12-11 10:00Z noon | meeting", nil},
		{"inverted", "2016-12-11 11:00Z 10:00Z | meeting", ErrInverted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseLine(tc.input)
			if err == nil {
				t.Fatalf("expected error for %q", tc.input)
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if tc.cause != nil && !errors.Is(err, tc.cause) {
				t.Errorf("expected cause %v, got %v", tc.cause, err)
			}
		})
	}
}

func TestSpanSplitsAtMidnight(t *testing.T) {
	begin := time.Date(2016, 12, 11, 22, 0, 0, 0, time.UTC)
	end := time.Date(2016, 12, 12, 2, 0, 0, 0, time.UTC)

	pieces := Span(begin, end, time.UTC, "flight")
	if len(pieces) != 2 {
		t.Fatalf("expected 2 pieces, got %d: %v", len(pieces), pieces)
	}
	if got := pieces[0].String(); got != "2016-12-11 22:00Z 23:59Z | flight" {
		t.Errorf("first piece = %q", got)
	}
	if got := pieces[1].String(); got != "2016-12-12 00:00Z 02:00Z | flight" {
		t.Errorf("second piece = %q", got)
	}
}

func TestSpanConvertsLocation(t *testing.T) {
	begin := time.Date(2016, 12, 11, 18, 0, 0, 0, time.UTC)
	pieces := Span(begin, begin.Add(time.Hour), pst, "call")
	if len(pieces) != 1 {
		t.Fatalf("expected 1 piece, got %d", len(pieces))
	}
	if got := pieces[0].String(); got != "2016-12-11 10:00-08:00 11:00-08:00 | call" {
		t.Errorf("piece = %q", got)
	}
}

func TestOverlaps(t *testing.T) {
	a := mustAppt(t, "2016-12-11", "09:00", "10:00", "a")
	cases := []struct {
		name string
		b    Appointment
		want bool
	}{
		{"inside", mustAppt(t, "2016-12-11", "09:15", "09:45", "b"), true},
		{"touching", mustAppt(t, "2016-12-11", "10:00", "11:00", "b"), false},
		{"other date", mustAppt(t, "2016-12-12", "09:00", "10:00", "b"), false},
		{"straddling", mustAppt(t, "2016-12-11", "08:30", "09:01", "b"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := a.Overlaps(tc.b); got != tc.want {
				t.Errorf("Overlaps = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDateArithmetic(t *testing.T) {
	d := Date{Year: 2016, Month: time.December, Day: 31}
	if got := d.AddDays(1); got != (Date{Year: 2017, Month: time.January, Day: 1}) {
		t.Errorf("AddDays(1) = %s", got)
	}
	if got := d.AddDays(-365); got != (Date{Year: 2016, Month: time.January, Day: 1}) {
		t.Errorf("AddDays(-365) = %s", got)
	}
	if !d.After(d.AddDays(-1)) || !d.Before(d.AddDays(1)) || d.Compare(d) != 0 {
		t.Error("date comparison is inconsistent")
	}
}
