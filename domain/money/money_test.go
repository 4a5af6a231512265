package money

import "testing"

func TestPercentRoundsToTwoDecimals(t *testing.T) {
	fee := Percent(FromFloat(40), 5.0)
	if fee.String() != "2" {
		t.Fatalf("expected fee 2, got %s", fee.String())
	}
}

func TestFromFloatRoundsHalfUp(t *testing.T) {
	v := FromFloat(1.005)
	if v.StringFixed(2) != "1.01" {
		t.Fatalf("expected 1.005 to round half up to 1.01, got %s", v.StringFixed(2))
	}
}

func TestIsPositive(t *testing.T) {
	if IsPositive(Zero) {
		t.Fatalf("zero should not be positive")
	}
	if !IsPositive(FromFloat(0.01)) {
		t.Fatalf("0.01 should be positive")
	}
	if !IsNegativeOrZero(Zero) {
		t.Fatalf("zero should be <= 0")
	}
}
