package domain

import "errors"

// ErrBanned marks a source-level ban (403 or repeated 429). Fatal to the current run.
var ErrBanned = errors.New("source banned the client")
