package exitcode

import (
	"testing"

	"github.com/gyeh/visitload/internal/ingest"
)

func TestForPhase(t *testing.T) {
	tests := []struct {
		phase string
		want  int
	}{
		{ingest.PhasePreflight, ValidationError},
		{ingest.PhaseHeaders, ValidationError},
		{ingest.PhaseTransform, ValidationError},
		{ingest.PhaseValidate, ValidationError},
		{ingest.PhaseMerge, MergeError},
		{ingest.PhaseArchive, ArchiveError},
		{"unknown", MergeError},
	}
	for _, tt := range tests {
		t.Run(tt.phase, func(t *testing.T) {
			if got := ForPhase(tt.phase); got != tt.want {
				t.Errorf("ForPhase(%q) = %d, want %d", tt.phase, got, tt.want)
			}
		})
	}
}
