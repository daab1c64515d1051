package core

import "fmt"

const (
	// CACodeLength is the number of chips in one C/A code period.
	CACodeLength = 1023
	// CACodeRateHz is the C/A chipping rate. One code period is exactly
	// 1 ms, which is why the receiver works in 1 ms sample packets.
	CACodeRateHz = 1.023e6
)

// caDelay holds the G2 tap delay per PRN (IS-GPS-200 table 3-I), PRN 1-32.
var caDelay = [...]int{
	5, 6, 7, 8, 17, 18, 139, 140, 141, 251,
	252, 254, 255, 256, 257, 258, 469, 470, 471, 472,
	473, 474, 509, 512, 513, 514, 515, 516, 859, 860,
	861, 862,
}

// CACode generates the C/A spreading sequence for prn as +/-1 chips.
// The two 10-stage LFSRs are seeded all-ones; G1 feeds back taps 3 and 10,
// G2 taps 2, 3, 6, 8, 9, and 10.
func CACode(prn int) ([]int8, error) {
	if prn < 1 || prn > len(caDelay) {
		return nil, fmt.Errorf("cacode: PRN %d outside supported range 1-%d", prn, len(caDelay))
	}

	var r1, r2 [10]int8
	for i := range r1 {
		r1[i] = -1
		r2[i] = -1
	}

	var g1, g2 [CACodeLength]int8
	for i := 0; i < CACodeLength; i++ {
		g1[i] = r1[9]
		g2[i] = r2[9]
		c1 := r1[2] * r1[9]
		c2 := r2[1] * r2[2] * r2[5] * r2[7] * r2[8] * r2[9]
		for j := 9; j > 0; j-- {
			r1[j] = r1[j-1]
			r2[j] = r2[j-1]
		}
		r1[0] = c1
		r2[0] = c2
	}

	code := make([]int8, CACodeLength)
	j := CACodeLength - caDelay[prn-1]
	for i := 0; i < CACodeLength; i++ {
		code[i] = -g1[i] * g2[j%CACodeLength]
		j++
	}
	return code, nil
}
