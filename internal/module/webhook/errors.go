package webhook

import "errors"

// Module errors.
var (
	ErrDeliveryFailed = errors.New("webhook delivery failed")
	ErrInvalidPayload = errors.New("invalid webhook payload")
	ErrQueueStore     = errors.New("webhook queue store failed")
)
