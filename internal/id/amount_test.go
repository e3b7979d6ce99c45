package id

import "testing"

func TestNormalizeAmountBaseUnits(t *testing.T) {
	base, dec, err := NormalizeAmount("1000000", "", 6)
	if err != nil {
		t.Fatalf("NormalizeAmount failed: %v", err)
	}
	if base != "1000000" || dec != "1" {
		t.Fatalf("unexpected result: base=%s dec=%s", base, dec)
	}
}

func TestNormalizeAmountDecimal(t *testing.T) {
	base, dec, err := NormalizeAmount("", "1.25", 6)
	if err != nil {
		t.Fatalf("NormalizeAmount failed: %v", err)
	}
	if base != "1250000" || dec != "1.25" {
		t.Fatalf("unexpected result: base=%s dec=%s", base, dec)
	}
}

func TestNormalizeAmountValidation(t *testing.T) {
	if _, _, err := NormalizeAmount("10", "1", 6); err == nil {
		t.Fatal("expected mutual exclusivity error")
	}
	if _, _, err := NormalizeAmount("", "1.1234567", 6); err == nil {
		t.Fatal("expected precision error")
	}
	if got := FormatDecimalCompat("0", 6); got != "0" {
		t.Fatalf("unexpected zero format: %s", got)
	}
}

func TestNormalizeAmountCanonicalizesSpellings(t *testing.T) {
	base, dec, err := NormalizeAmount("007", "", 2)
	if err != nil {
		t.Fatalf("NormalizeAmount failed: %v", err)
	}
	if base != "7" || dec != "0.07" {
		t.Fatalf("leading zeros must canonicalize: base=%s dec=%s", base, dec)
	}

	base, dec, err = NormalizeAmount("", "01.250", 6)
	if err != nil {
		t.Fatalf("NormalizeAmount failed: %v", err)
	}
	if base != "1250000" || dec != "1.25" {
		t.Fatalf("decimal spelling must canonicalize: base=%s dec=%s", base, dec)
	}
}

func TestFormatDecimalCompatPadsSmallFractions(t *testing.T) {
	if got := FormatDecimalCompat("7", 2); got != "0.07" {
		t.Fatalf("expected 0.07, got %s", got)
	}
	if got := FormatDecimalCompat("70", 2); got != "0.7" {
		t.Fatalf("expected 0.7, got %s", got)
	}
	if got := FormatDecimalCompat("1000000000000000000", 18); got != "1" {
		t.Fatalf("expected 1, got %s", got)
	}
}

func TestParseBaseUnits(t *testing.T) {
	n, err := ParseBaseUnits("1000000")
	if err != nil {
		t.Fatalf("ParseBaseUnits failed: %v", err)
	}
	if n.String() != "1000000" {
		t.Fatalf("unexpected value: %s", n)
	}
	if _, err := ParseBaseUnits("1.5"); err == nil {
		t.Fatal("expected error for decimal input")
	}
	if _, err := ParseBaseUnits("-3"); err == nil {
		t.Fatal("expected error for negative input")
	}
}
