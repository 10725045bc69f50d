package enums

// OutboxDLQErrorReason classifies why an outbox event landed in the DLQ.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonUnknownEventType OutboxDLQErrorReason = "unknown_event_type"
	OutboxDLQReasonDecodeFailure    OutboxDLQErrorReason = "decode_failure"
	OutboxDLQReasonMaxAttempts      OutboxDLQErrorReason = "max_attempts_exceeded"
	OutboxDLQReasonNonRetryable     OutboxDLQErrorReason = "non_retryable"
)

// String implements fmt.Stringer.
func (o OutboxDLQErrorReason) String() string {
	return string(o)
}
