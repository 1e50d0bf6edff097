package ballot

import (
	"context"
	"errors"
)

// Kind names an error category recorded on ballots and surfaced to callers.
type Kind string

const (
	KindNone                            Kind = ""
	KindInsufficientMarkers             Kind = "InsufficientMarkers"
	KindMissingMarkerEstimationFailed   Kind = "MissingMarkerEstimationFailed"
	KindTemplateNotFound                Kind = "TemplateNotFound"
	KindClassificationEngineUnavailable Kind = "ClassificationEngineUnavailable"
	KindRowExclusivityViolation         Kind = "RowExclusivityViolation"
	KindEmptyRoster                     Kind = "EmptyRoster"
	KindEmptyBallotSet                  Kind = "EmptyBallotSet"
	KindAlreadyCounted                  Kind = "AlreadyCounted"
	KindImageUnreadable                 Kind = "ImageUnreadable"
	KindAbandoned                       Kind = "Abandoned"
	KindInternal                        Kind = "Internal"
)

var (
	ErrInsufficientMarkers             = errors.New("fewer than 3 fiducial markers observed")
	ErrMissingMarkerEstimationFailed   = errors.New("missing marker cannot be estimated")
	ErrTemplateNotFound                = errors.New("layout template not found")
	ErrClassificationEngineUnavailable = errors.New("classification engine unavailable")
	ErrRowExclusivityViolation         = errors.New("row must mark exactly one of agree/disagree")
	ErrEmptyRoster                     = errors.New("candidate roster is empty")
	ErrEmptyBallotSet                  = errors.New("no ballots to count")
	ErrAlreadyCounted                  = errors.New("poll has already been counted")
	ErrImageUnreadable                 = errors.New("ballot image cannot be read")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInsufficientMarkers, KindInsufficientMarkers},
	{ErrMissingMarkerEstimationFailed, KindMissingMarkerEstimationFailed},
	{ErrTemplateNotFound, KindTemplateNotFound},
	{ErrClassificationEngineUnavailable, KindClassificationEngineUnavailable},
	{ErrRowExclusivityViolation, KindRowExclusivityViolation},
	{ErrEmptyRoster, KindEmptyRoster},
	{ErrEmptyBallotSet, KindEmptyBallotSet},
	{ErrAlreadyCounted, KindAlreadyCounted},
	{ErrImageUnreadable, KindImageUnreadable},
	{context.Canceled, KindAbandoned},
	{context.DeadlineExceeded, KindAbandoned},
}

// KindOf maps an error chain to its Kind. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsPrecondition reports whether err aborts a whole counting run rather than
// a single ballot.
func IsPrecondition(err error) bool {
	switch KindOf(err) {
	case KindEmptyRoster, KindEmptyBallotSet, KindAlreadyCounted:
		return true
	default:
		return false
	}
}
