package queue

import "errors"

// ErrClosed is returned when putting to a closed queue.
var ErrClosed = errors.New("queue closed")
