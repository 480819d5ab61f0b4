package capability

import "errors"

// ErrInputTooLarge reports that a request exceeded the provider's context
// window. Steps treat it as a terminal branch condition rather than a
// retryable failure: the error text is recorded in state and the branch
// ends.
var ErrInputTooLarge = errors.New("input is too long for requested model")
