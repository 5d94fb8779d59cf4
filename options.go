package courier

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultMessageTimeout is how long a SendMessage callback waits for a reply
// before it receives ErrTimeout.
const DefaultMessageTimeout = 30 * time.Second

var validate = validator.New()

// Options configures a Client. Namespace is the only required field.
type Options struct {
	// Namespace is the isolation domain this client lives in. Two clients
	// only exchange messages when their namespaces are identical.
	Namespace string `validate:"required"`

	// ClientID is this client's identity within the namespace. It must be
	// unique among live clients sharing the namespace; collisions are not
	// detected and cause duplicate delivery. A random UUID is generated when
	// empty.
	ClientID string

	// MessageTimeout is the default reply deadline for correlated sends.
	// Zero means DefaultMessageTimeout.
	MessageTimeout time.Duration `validate:"gte=0"`

	// SurfaceTransportErrors controls what happens when a publish fails. By
	// default transport errors are logged and swallowed, on the assumption
	// that the transport handles its own reconnection; set this to have send
	// operations return them instead.
	SurfaceTransportErrors bool

	// Logger receives the client's structured logs. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// withDefaults validates the options and fills in the optional fields.
func (o Options) withDefaults() (Options, error) {
	if err := validate.Struct(o); err != nil {
		return Options{}, fmt.Errorf("courier: invalid options: %w", err)
	}
	if o.ClientID == "" {
		o.ClientID = uuid.NewString()
	}
	if o.MessageTimeout == 0 {
		o.MessageTimeout = DefaultMessageTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o, nil
}
