package contract

import (
	"math/big"
	"testing"
)

func TestToSmallestUnit(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1", want: "100000000"},
		{in: "123.45", want: "12345000000"},
		{in: "0.00000001", want: "1"},
		{in: "0", want: "0"},
		{in: " 10 ", want: "1000000000"},
		{in: ".5", want: "50000000"},
		{in: "-1", wantErr: true},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "0.000000001", wantErr: true}, // 9 fractional digits
	}

	for _, tt := range tests {
		got, err := ToSmallestUnit(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ToSmallestUnit(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ToSmallestUnit(%q): %v", tt.in, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ToSmallestUnit(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFromSmallestUnit(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "100000000", want: "1"},
		{in: "12345000000", want: "123.45"},
		{in: "1", want: "0.00000001"},
		{in: "0", want: "0"},
		{in: "-250000000", want: "-2.5"},
	}

	for _, tt := range tests {
		n, _ := new(big.Int).SetString(tt.in, 10)
		if got := FromSmallestUnit(n); got != tt.want {
			t.Errorf("FromSmallestUnit(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFromSmallestUnitNil(t *testing.T) {
	if got := FromSmallestUnit(nil); got != "0" {
		t.Errorf("got %q", got)
	}
}

func TestUnitRoundTrip(t *testing.T) {
	for _, s := range []string{"1", "0.5", "999999.99999999", "123.45"} {
		n, err := ToSmallestUnit(s)
		if err != nil {
			t.Fatalf("ToSmallestUnit(%q): %v", s, err)
		}
		if got := FromSmallestUnit(n); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}
