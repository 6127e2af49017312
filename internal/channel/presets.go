package channel

import "time"

// Named timeout presets (SPEC_FULL.md module addition 1) so activation code
// reads as intent ("give the user time to think") rather than a bare
// duration literal.
const (
	PresetQuick    = 10 * time.Second
	PresetNormal   = 30 * time.Second // default when no preset is given
	PresetPatient  = 60 * time.Second
	PresetExtended = 300 * time.Second
)
