// Package outcome classifies raw radio failure codes into a closed set of
// reasons and renders per-role outcomes for the presentation layer.
package outcome

import "fmt"

// Raw advertise start failure codes, as numbered by the platform radio stack.
const (
	AdvertiseFailedDataTooLarge       = 1
	AdvertiseFailedTooManyAdvertisers = 2
	AdvertiseFailedAlreadyStarted     = 3
	AdvertiseFailedInternalError      = 4
	AdvertiseFailedFeatureUnsupported = 5
)

// Raw scan failure codes, as numbered by the platform radio stack.
const (
	ScanFailedAlreadyStarted                = 1
	ScanFailedApplicationRegistrationFailed = 2
	ScanFailedInternalError                 = 3
	ScanFailedFeatureUnsupported            = 4
)

// CodeRadioUnavailable is reported by backends in either domain when the radio
// is off or missing.
const CodeRadioUnavailable = 0x100

// Kind enumerates the failure reasons.
type Kind int

const (
	KindUnknown Kind = iota
	KindAlreadyStarted
	KindDataTooLarge
	KindFeatureUnsupported
	KindInternalError
	KindTooManyAdvertisers
	KindAppRegistrationFailed
	KindRadioUnavailable
)

// FailureReason is a classified failure. Code holds the raw code for KindUnknown.
type FailureReason struct {
	Kind Kind
	Code int
}

// Reasons for the known kinds.
var (
	AlreadyStarted        = FailureReason{Kind: KindAlreadyStarted}
	DataTooLarge          = FailureReason{Kind: KindDataTooLarge}
	FeatureUnsupported    = FailureReason{Kind: KindFeatureUnsupported}
	InternalError         = FailureReason{Kind: KindInternalError}
	TooManyAdvertisers    = FailureReason{Kind: KindTooManyAdvertisers}
	AppRegistrationFailed = FailureReason{Kind: KindAppRegistrationFailed}
	RadioUnavailable      = FailureReason{Kind: KindRadioUnavailable}
)

// Unknown wraps a code outside the known enumeration.
func Unknown(code int) FailureReason {
	return FailureReason{Kind: KindUnknown, Code: code}
}

// Fatal reports whether the failure ends the whole foreground session.
func (r FailureReason) Fatal() bool { return r.Kind == KindRadioUnavailable }

// Text is the human readable reason used in presentation lines.
func (r FailureReason) Text() string {
	switch r.Kind {
	case KindAlreadyStarted:
		return "already started"
	case KindDataTooLarge:
		return "data too large"
	case KindFeatureUnsupported:
		return "feature unsupported"
	case KindInternalError:
		return "internal error"
	case KindTooManyAdvertisers:
		return "too many advertisers"
	case KindAppRegistrationFailed:
		return "app registration failed"
	case KindRadioUnavailable:
		return "radio unavailable"
	default:
		return fmt.Sprintf("unknown error (code %d)", r.Code)
	}
}

// String returns a stable identifier suitable for logs and JSON.
func (r FailureReason) String() string {
	switch r.Kind {
	case KindAlreadyStarted:
		return "already_started"
	case KindDataTooLarge:
		return "data_too_large"
	case KindFeatureUnsupported:
		return "feature_unsupported"
	case KindInternalError:
		return "internal_error"
	case KindTooManyAdvertisers:
		return "too_many_advertisers"
	case KindAppRegistrationFailed:
		return "app_registration_failed"
	case KindRadioUnavailable:
		return "radio_unavailable"
	default:
		return fmt.Sprintf("unknown(%d)", r.Code)
	}
}

// ClassifyAdvertiseFailure maps a raw advertise failure code. It never fails:
// codes outside the known set become Unknown(code).
func ClassifyAdvertiseFailure(code int) FailureReason {
	switch code {
	case AdvertiseFailedDataTooLarge:
		return DataTooLarge
	case AdvertiseFailedTooManyAdvertisers:
		return TooManyAdvertisers
	case AdvertiseFailedAlreadyStarted:
		return AlreadyStarted
	case AdvertiseFailedInternalError:
		return InternalError
	case AdvertiseFailedFeatureUnsupported:
		return FeatureUnsupported
	case CodeRadioUnavailable:
		return RadioUnavailable
	default:
		return Unknown(code)
	}
}

// ClassifyScanFailure maps a raw scan failure code. It never fails: codes
// outside the known set become Unknown(code).
func ClassifyScanFailure(code int) FailureReason {
	switch code {
	case ScanFailedAlreadyStarted:
		return AlreadyStarted
	case ScanFailedApplicationRegistrationFailed:
		return AppRegistrationFailed
	case ScanFailedInternalError:
		return InternalError
	case ScanFailedFeatureUnsupported:
		return FeatureUnsupported
	case CodeRadioUnavailable:
		return RadioUnavailable
	default:
		return Unknown(code)
	}
}
