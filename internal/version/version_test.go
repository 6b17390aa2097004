package version

import (
	"errors"
	"reflect"
	"testing"
)

func TestStringConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant string
		expected string
	}{
		{"OpParseRelease", OpParseRelease, "parse_release"},
		{"OpParseConstraint", OpParseConstraint, "parse_constraint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.constant != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, tt.constant)
			}
		})
	}
}

func TestParseRelease(t *testing.T) {
	tests := []struct {
		name      string
		label     string
		wantMajor uint64
		wantErr   error
	}{
		{name: "windows 11", label: "11", wantMajor: 11},
		{name: "windows 10", label: "10", wantMajor: 10},
		{name: "major minor", label: "11.24", wantMajor: 11},
		{name: "empty", label: "", wantErr: ErrEmptyRelease},
		{name: "not a version", label: "eleven", wantErr: ErrVersionParseFailed{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseRelease(tt.label)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseRelease(%q) error = %v, want %v", tt.label, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRelease(%q) unexpected error: %v", tt.label, err)
			}
			if v.Major() != tt.wantMajor {
				t.Errorf("Major() = %d, want %d", v.Major(), tt.wantMajor)
			}
		})
	}
}

func TestErrVersionParseFailed(t *testing.T) {
	cause := errors.New("boom")
	err := ErrVersionParseFailed{Version: "x", Op: OpParseRelease, Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("expected error to unwrap to cause")
	}
	want := `failed to parse "x" in operation parse_release: boom`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCompareReleases(t *testing.T) {
	tests := []struct {
		a, b    string
		want    int
		wantErr bool
	}{
		{a: "10", b: "11", want: -1},
		{a: "11", b: "11", want: 0},
		{a: "11", b: "10", want: 1},
		{a: "bad", b: "10", wantErr: true},
		{a: "10", b: "bad", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			got, err := CompareReleases(tt.a, tt.b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CompareReleases() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("CompareReleases() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSortReleasesDescending(t *testing.T) {
	in := []string{"10", "bad", "11", "8.1"}
	got := SortReleasesDescending(in)
	want := []string{"11", "10", "8.1", "bad"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortReleasesDescending() = %v, want %v", got, want)
	}
	if in[0] != "10" {
		t.Error("input slice must not be modified")
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		release string
		want    bool
		wantErr bool
	}{
		{name: "empty matches all", expr: "", release: "10", want: true},
		{name: "empty matches unparseable", expr: "", release: "whatever", want: true},
		{name: "exact match", expr: "11", release: "11", want: true},
		{name: "exact miss", expr: "11", release: "10", want: false},
		{name: "range", expr: ">=11", release: "11", want: true},
		{name: "range miss", expr: ">=11", release: "10", want: false},
		{name: "or", expr: "10 || 11", release: "10", want: true},
		{name: "bad release", expr: ">=11", release: "eleven", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.expr)
			if err != nil {
				t.Fatalf("NewFilter(%q) error = %v", tt.expr, err)
			}
			got, err := f.Match(tt.release)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Match(%q) error = %v, wantErr %v", tt.release, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.release, got, tt.want)
			}
		})
	}
}

func TestNewFilter_InvalidConstraint(t *testing.T) {
	_, err := NewFilter(">>=nope")
	if err == nil {
		t.Fatal("expected error for invalid constraint")
	}
	var parseErr ErrVersionParseFailed
	if !errors.As(err, &parseErr) || parseErr.Op != OpParseConstraint {
		t.Errorf("expected ErrVersionParseFailed with op %s, got %v", OpParseConstraint, err)
	}
}

func TestFilter_NilMatchesAll(t *testing.T) {
	var f *Filter
	ok, err := f.Match("11")
	if err != nil || !ok {
		t.Errorf("nil Filter Match() = %v, %v; want true, nil", ok, err)
	}
}
