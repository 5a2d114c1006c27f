package app

// StopReason records what initiated shutdown; it only feeds logs.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopAPIRequest StopReason = "api_request"
	StopFatalError StopReason = "fatal_error"
)
