package constants

// AttemptOutcome classifies a single protocol request attempt.
type AttemptOutcome uint8

const (
	OutcomeSuccess AttemptOutcome = iota
	OutcomeRateLimited
	OutcomeServerError
	OutcomeClientError
	OutcomeNetworkError
)

func (o AttemptOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate-limited"
	case OutcomeServerError:
		return "server-error"
	case OutcomeClientError:
		return "client-error"
	case OutcomeNetworkError:
		return "network-error"
	}
	return "unknown"
}

// Retryable reports whether another attempt may follow this outcome.
func (o AttemptOutcome) Retryable() bool {
	switch o {
	case OutcomeRateLimited, OutcomeServerError, OutcomeNetworkError:
		return true
	}
	return false
}

// ScanFormat identifies the wristband/barcode encoding a scanned identifier
// arrived in.
type ScanFormat uint8

const (
	ScanFormatPlain     ScanFormat = iota
	ScanFormatLabeled              // "MRN: 12345678"
	ScanFormatDelimited            // "^MRN^12345678^..."
	ScanFormatUnknown              // passed through unmodified
)

func (f ScanFormat) String() string {
	switch f {
	case ScanFormatPlain:
		return "plain"
	case ScanFormatLabeled:
		return "labeled"
	case ScanFormatDelimited:
		return "delimited"
	}
	return "unknown"
}
