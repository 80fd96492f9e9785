package models

import "errors"

// StatusKind is the closed set of lifecycle states of a generation.
type StatusKind int

const (
	StatusKindIdle StatusKind = iota
	StatusKindUploading
	StatusKindProcessing
	StatusKindCompleted
	StatusKindFailed
)

func (k StatusKind) String() string {
	switch k {
	case StatusKindIdle:
		return "idle"
	case StatusKindUploading:
		return "uploading"
	case StatusKindProcessing:
		return "processing"
	case StatusKindCompleted:
		return "completed"
	case StatusKindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a tagged union: Err is set only when Kind is StatusKindFailed.
//
// Two comparisons exist on purpose. SameKind ignores the failure reason and
// is what change detection wants; Equal also compares the reasons.
type Status struct {
	Kind StatusKind
	Err  error
}

func StatusIdle() Status       { return Status{Kind: StatusKindIdle} }
func StatusUploading() Status  { return Status{Kind: StatusKindUploading} }
func StatusProcessing() Status { return Status{Kind: StatusKindProcessing} }
func StatusCompleted() Status  { return Status{Kind: StatusKindCompleted} }

// StatusFailed wraps err; a nil err is recorded as ErrUnknownFailure.
func StatusFailed(err error) Status {
	if err == nil {
		err = ErrUnknownFailure
	}
	return Status{Kind: StatusKindFailed, Err: err}
}

// ErrUnknownFailure stands in for a failure without a reason.
var ErrUnknownFailure = errors.New("unknown failure")

func (s Status) IsLoading() bool {
	return s.Kind == StatusKindUploading || s.Kind == StatusKindProcessing
}

func (s Status) IsFailed() bool { return s.Kind == StatusKindFailed }

// IsTerminal reports completed or failed.
func (s Status) IsTerminal() bool {
	return s.Kind == StatusKindCompleted || s.Kind == StatusKindFailed
}

func (s Status) SameKind(o Status) bool { return s.Kind == o.Kind }

func (s Status) Equal(o Status) bool {
	if s.Kind != o.Kind {
		return false
	}
	if s.Err == nil || o.Err == nil {
		return s.Err == o.Err
	}
	return errors.Is(s.Err, o.Err) || errors.Is(o.Err, s.Err)
}

func (s Status) String() string {
	if s.Kind == StatusKindFailed {
		return "failed: " + s.Err.Error()
	}
	return s.Kind.String()
}
