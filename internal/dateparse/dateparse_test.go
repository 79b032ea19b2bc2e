package dateparse

import (
	"testing"
	"time"
)

func testParser() *Parser {
	p := New()
	p.Now = func() time.Time { return time.Date(2022, 4, 20, 14, 0, 0, 0, time.UTC) }
	return p
}

func TestParseFixed(t *testing.T) {
	p := testParser()

	tests := []struct {
		input string
		want  string
	}{
		{"2022-04-15", "2022-04-15"},
		{"today", "2022-04-20"},
		{"Tomorrow", "2022-04-21"},
		{"yesterday", "2022-04-19"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := p.Parse(tt.input)
			if !ok {
				t.Fatalf("Parse(%q) failed", tt.input)
			}
			if got.Format("2006-01-02") != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.input, got.Format("2006-01-02"), tt.want)
			}
			if got.Hour() != 0 || got.Minute() != 0 || got.Location() != time.UTC {
				t.Errorf("Parse(%q) = %v, want UTC midnight", tt.input, got)
			}
		})
	}
}

func TestParseNatural(t *testing.T) {
	p := testParser()

	got, ok := p.Parse("next friday")
	if !ok {
		t.Fatal("Parse(next friday) failed")
	}
	if got.Weekday() != time.Friday {
		t.Errorf("Parse(next friday) = %s, a %s", got.Format("2006-01-02"), got.Weekday())
	}
	if !got.After(time.Date(2022, 4, 20, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Parse(next friday) = %s, want a date after 2022-04-20", got.Format("2006-01-02"))
	}
}

func TestParseInvalid(t *testing.T) {
	p := testParser()

	for _, input := range []string{"", "   ", "banana"} {
		if got, ok := p.Parse(input); ok {
			t.Errorf("Parse(%q) = %v, want failure", input, got)
		}
	}
}
