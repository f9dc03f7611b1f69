package places

import (
	"github.com/rotisserie/eris"
)

// ErrRequestRejected is returned when the API refuses the request itself
// (bad key, malformed parameters). Retrying cannot help.
var ErrRequestRejected = eris.New("places: request rejected")

// Kind classifies a search response.
type Kind int

const (
	// KindUnknown is a response status the client does not recognize.
	KindUnknown Kind = iota
	// KindSuccess carries hits, possibly truncated at the result cap.
	KindSuccess
	// KindEmpty means the area has no results.
	KindEmpty
	// KindRateLimited means the quota is exhausted for now.
	KindRateLimited
	// KindTransientError is a network or server failure.
	KindTransientError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindEmpty:
		return "empty"
	case KindRateLimited:
		return "rate_limited"
	case KindTransientError:
		return "transient_error"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one logical search.
type Outcome struct {
	Kind Kind
	// Status is the raw API status of the last page fetched.
	Status string
	Places []Place
	// Truncated is set when the hit count reached the cap, so the area may
	// hold more places than were returned.
	Truncated bool
	// Pages is the number of HTTP calls made.
	Pages int
	// Err is the underlying failure for KindTransientError.
	Err error
}

func classify(resp *nearbyResponse) (Kind, error) {
	switch resp.Status {
	case StatusOK:
		return KindSuccess, nil
	case StatusZeroResults:
		return KindEmpty, nil
	case StatusOverQueryLimit, "RESOURCE_EXHAUSTED":
		return KindRateLimited, nil
	case StatusUnknownError:
		return KindTransientError, nil
	case StatusRequestDenied, StatusInvalidRequest:
		return KindUnknown, eris.Wrapf(ErrRequestRejected, "%s: %s", resp.Status, resp.ErrorMessage)
	default:
		return KindUnknown, nil
	}
}
