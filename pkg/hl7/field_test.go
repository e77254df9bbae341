package hl7

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFieldComponents(t *testing.T) {
	f := NewField("SMITH^JOHN^W")
	got := f.Components()
	if strings.Join(got, ",") != "SMITH,JOHN,W" {
		t.Fatalf("unexpected components %v", got)
	}
	if c, ok := f.Component(2); !ok || c != "JOHN" {
		t.Fatalf("component 2 = %q, %v", c, ok)
	}
	if _, ok := f.Component(4); ok {
		t.Fatalf("component 4 must be absent")
	}
	if _, ok := f.Component(0); ok {
		t.Fatalf("component 0 must be absent")
	}
	name, err := f.AsName()
	if err != nil {
		t.Fatalf("AsName returned error: %v", err)
	}
	if name.Last != "SMITH" || name.First != "JOHN" || name.Middle != "W" {
		t.Fatalf("unexpected name %+v", name)
	}
	if name.String() != "JOHN W SMITH" {
		t.Fatalf("unexpected display name %q", name.String())
	}
}

func TestFieldWithoutComponentDelimiter(t *testing.T) {
	f := NewField("plain")
	if got := f.Components(); len(got) != 1 || got[0] != "plain" {
		t.Fatalf("expected single component, got %v", got)
	}
}

func TestFieldComponentsAreNotShared(t *testing.T) {
	f := NewField("A^B")
	got := f.Components()
	got[0] = "changed"
	if c, _ := f.Component(1); c != "A" {
		t.Fatalf("caller mutation leaked into field: %q", c)
	}
}

func TestFieldConcurrentComponents(t *testing.T) {
	f := NewField("A^B^C")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c, ok := f.Component(3); !ok || c != "C" {
				t.Errorf("component 3 = %q, %v", c, ok)
			}
		}()
	}
	wg.Wait()
}

func TestSubcomponents(t *testing.T) {
	f := NewField("123 MAIN~APT 4^^CITY")
	got := f.Subcomponents(1)
	if len(got) != 2 || got[0] != "123 MAIN" || got[1] != "APT 4" {
		t.Fatalf("unexpected subcomponents %v", got)
	}
	if f.Subcomponents(9) != nil {
		t.Fatalf("missing component must have no subcomponents")
	}
}

func TestAsDate(t *testing.T) {
	d, err := NewField("20010203").AsDate()
	if err != nil {
		t.Fatalf("AsDate returned error: %v", err)
	}
	if d.Year() != 2001 || d.Month() != time.February || d.Day() != 3 {
		t.Fatalf("unexpected date %v", d)
	}
	for _, raw := range []string{"2001-02-03", "200102", "20011303", "200102031200"} {
		if _, err := NewField(raw).AsDate(); !errors.Is(err, ErrFormat) {
			t.Fatalf("%q: expected format error, got %v", raw, err)
		}
	}
}

func TestAsDateTime(t *testing.T) {
	cases := map[string]time.Time{
		"20010203":       time.Date(2001, 2, 3, 0, 0, 0, 0, time.UTC),
		"200102031415":   time.Date(2001, 2, 3, 14, 15, 0, 0, time.UTC),
		"20010203141516": time.Date(2001, 2, 3, 14, 15, 16, 0, time.UTC),
	}
	for raw, want := range cases {
		got, err := NewField(raw).AsDateTime()
		if err != nil {
			t.Fatalf("%q: AsDateTime returned error: %v", raw, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%q: got %v want %v", raw, got, want)
		}
	}
	for _, raw := range []string{"2001020314", "20010203T1415", "x"} {
		if _, err := NewField(raw).AsDateTime(); CodeOf(err) != ErrCodeFormat {
			t.Fatalf("%q: expected FORMAT_ERROR, got %v", raw, err)
		}
	}
}

func TestAsTimestamp(t *testing.T) {
	got, err := NewField("20220301120000.25-0500^S").AsTimestamp()
	if err != nil {
		t.Fatalf("AsTimestamp returned error: %v", err)
	}
	want := time.Date(2022, 3, 1, 17, 0, 0, 250000000, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if _, err := NewField("2022-03-01").AsTimestamp(); CodeOf(err) != ErrCodeFormat {
		t.Fatalf("expected FORMAT_ERROR, got %v", err)
	}
}

func TestAsNameRequiresLastName(t *testing.T) {
	if _, err := NewField("^JOHN").AsName(); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
	var absent *Field
	if _, err := absent.AsName(); !errors.Is(err, ErrFormat) {
		t.Fatalf("absent field must not produce a name, got %v", err)
	}
	name, err := NewField("DOE^JANE^^JR^DR^MD^EXTRA").AsName()
	if err != nil {
		t.Fatalf("AsName returned error: %v", err)
	}
	if name.Suffix != "JR" || name.Prefix != "DR" || name.Degree != "MD" {
		t.Fatalf("unexpected name %+v", name)
	}
}

func TestNilFieldIsAbsent(t *testing.T) {
	var f *Field
	if f.String() != "" || f.Components() != nil {
		t.Fatalf("nil field must render empty")
	}
	if _, ok := f.Component(1); ok {
		t.Fatalf("nil field has no components")
	}
}
