package core

import "testing"

func TestCACodeRejectsBadPRN(t *testing.T) {
	for _, prn := range []int{0, -1, 33, 100} {
		if _, err := CACode(prn); err == nil {
			t.Errorf("CACode(%d) should fail", prn)
		}
	}
}

func TestCACodeChipValues(t *testing.T) {
	code, err := CACode(1)
	if err != nil {
		t.Fatalf("CACode(1): %v", err)
	}
	if len(code) != CACodeLength {
		t.Fatalf("code length = %d, want %d", len(code), CACodeLength)
	}
	for i, c := range code {
		if c != 1 && c != -1 {
			t.Fatalf("chip %d = %d, want +1 or -1", i, c)
		}
	}
}

// Gold codes are nearly balanced: one chip value occurs 512 times and the
// other 511, so the chip sum is +/-1.
func TestCACodeBalance(t *testing.T) {
	for prn := 1; prn <= 32; prn++ {
		code, err := CACode(prn)
		if err != nil {
			t.Fatalf("CACode(%d): %v", prn, err)
		}
		sum := 0
		for _, c := range code {
			sum += int(c)
		}
		if sum != 1 && sum != -1 {
			t.Errorf("PRN %d chip sum = %d, want +/-1", prn, sum)
		}
	}
}

func TestCACodeAutocorrelation(t *testing.T) {
	code, err := CACode(5)
	if err != nil {
		t.Fatalf("CACode(5): %v", err)
	}
	if got := circularCorrelation(code, code, 0); got != CACodeLength {
		t.Errorf("zero-lag autocorrelation = %d, want %d", got, CACodeLength)
	}
	// Off-peak autocorrelation of a Gold code takes only the three values
	// -65, -1, and 63.
	for lag := 1; lag < CACodeLength; lag++ {
		got := circularCorrelation(code, code, lag)
		if got != -65 && got != -1 && got != 63 {
			t.Fatalf("autocorrelation at lag %d = %d, want -65, -1, or 63", lag, got)
		}
	}
}

func TestCACodeCrossCorrelation(t *testing.T) {
	a, err := CACode(3)
	if err != nil {
		t.Fatalf("CACode(3): %v", err)
	}
	b, err := CACode(17)
	if err != nil {
		t.Fatalf("CACode(17): %v", err)
	}
	for lag := 0; lag < CACodeLength; lag++ {
		got := circularCorrelation(a, b, lag)
		if got < -65 || got > 63 {
			t.Fatalf("cross-correlation at lag %d = %d, outside [-65, 63]", lag, got)
		}
	}
}

func TestCACodesDistinct(t *testing.T) {
	seen := make(map[string]int)
	for prn := 1; prn <= 32; prn++ {
		code, err := CACode(prn)
		if err != nil {
			t.Fatalf("CACode(%d): %v", prn, err)
		}
		key := string(codeBytes(code))
		if other, dup := seen[key]; dup {
			t.Fatalf("PRN %d and PRN %d generate the same code", prn, other)
		}
		seen[key] = prn
	}
}

func circularCorrelation(a, b []int8, lag int) int {
	sum := 0
	for i := range a {
		sum += int(a[i]) * int(b[(i+lag)%len(b)])
	}
	return sum
}

func codeBytes(code []int8) []byte {
	out := make([]byte, len(code))
	for i, c := range code {
		out[i] = byte(c)
	}
	return out
}
