package dw

// Outcome is the expected result of one intake attempt. Only unexpected
// failures are reported as errors.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeUpdated
	OutcomeUnchanged
	// OutcomeDuplicateSkipped means another active document already holds the
	// same content; the file is left on disk uncataloged.
	OutcomeDuplicateSkipped
	// OutcomeConflictRecorded means a pending Conflict was created for the file.
	OutcomeConflictRecorded
	// OutcomePendingConflict means the file is awaiting a conflict resolution
	// and was not touched.
	OutcomePendingConflict
	OutcomeUnsupportedType
	OutcomeNoContent
	// OutcomeMissing means the file vanished before it could be processed.
	OutcomeMissing
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeDuplicateSkipped:
		return "duplicate_skipped"
	case OutcomeConflictRecorded:
		return "conflict_recorded"
	case OutcomePendingConflict:
		return "pending_conflict"
	case OutcomeUnsupportedType:
		return "unsupported_type"
	case OutcomeNoContent:
		return "no_content"
	case OutcomeMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Reason says what triggered an intake attempt.
type Reason string

const (
	ReasonWatch     Reason = "watch"
	ReasonReconcile Reason = "reconcile"
	ReasonRepair    Reason = "repair"
	ReasonManual    Reason = "manual"
)
