package model

// SearchResult is the output of a 2-D code-phase / carrier-frequency
// acquisition search for one satellite. A result is produced once by the
// search and, when Found, consumed once to seed a tracking channel; it is
// never mutated afterwards.
type SearchResult struct {
	PRN int

	// CodePhase is the estimated code start offset within a 1 ms packet,
	// in samples.
	CodePhase int

	// FreqOffsetHz is the estimated carrier frequency offset from baseband
	// centre, including any hardware clock offset compensation applied
	// during the search.
	FreqOffsetHz float64

	// Confidence is the ratio of the correlation surface's peak to its
	// mean. Detection is an expected non-event: a quiet sky produces
	// Found == false, never an error.
	Confidence float64

	// Found reports whether Confidence cleared the acquisition threshold.
	Found bool
}
