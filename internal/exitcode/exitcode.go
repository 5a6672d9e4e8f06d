// Package exitcode lists the process exit codes of the visitload commands.
package exitcode

const (
	Success         = 0
	UsageError      = 1
	ValidationError = 2
	StoreConnError  = 3
	MergeError      = 4
	ArchiveError    = 5
	ExportError     = 6
)

// ForPhase returns the exit code for an ingest that failed in phase.
// Input problems (unreadable file, missing headers, bad rows) are
// ValidationError.
func ForPhase(phase string) int {
	switch phase {
	case "preflight", "headers", "transform", "validate":
		return ValidationError
	case "merge":
		return MergeError
	case "archive":
		return ArchiveError
	}
	return MergeError
}
