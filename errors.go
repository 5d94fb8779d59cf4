package courier

import (
	"errors"

	"github.com/nfrund/courier/internal/correlation"
)

// ErrTimeout is delivered to a SendMessage callback whose reply did not
// arrive within the message timeout.
var ErrTimeout = correlation.ErrTimeout

// ErrClosed is delivered to every pending SendMessage callback when the
// client is closed before their replies arrive.
var ErrClosed = correlation.ErrClosed

// ErrClientClosed is returned by send operations invoked after Close.
var ErrClientClosed = errors.New("courier: client is closed")
