package advertise

import (
	"fmt"

	"github.com/google/uuid"
)

// DefaultServiceID is the service identifier advertised and scanned for unless configured otherwise.
var DefaultServiceID = MustParseServiceID("52dcaf8e-2d15-11e5-b345-feff819cdc9f")

// ServiceID identifies the logical service being advertised and scanned for.
// It is a 128-bit value and is immutable once constructed.
type ServiceID struct {
	id uuid.UUID
}

// ParseServiceID parses the canonical textual form of a 128-bit UUID.
func ParseServiceID(s string) (ServiceID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ServiceID{}, fmt.Errorf("invalid service id %q: %w", s, err)
	}
	return ServiceID{id: id}, nil
}

// MustParseServiceID is like ParseServiceID but panics on malformed input.
func MustParseServiceID(s string) ServiceID {
	id, err := ParseServiceID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// UUID returns the underlying UUID value.
func (s ServiceID) UUID() uuid.UUID { return s.id }

// Bytes returns the 16 bytes of the identifier in big-endian (textual) order.
func (s ServiceID) Bytes() []byte {
	b := make([]byte, len(s.id))
	copy(b, s.id[:])
	return b
}

// IsZero reports whether the identifier was never set.
func (s ServiceID) IsZero() bool { return s.id == uuid.Nil }

func (s ServiceID) String() string { return s.id.String() }

// MarshalText implements encoding.TextMarshaler so the identifier can live in config files.
func (s ServiceID) MarshalText() ([]byte, error) {
	return []byte(s.id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ServiceID) UnmarshalText(text []byte) error {
	parsed, err := ParseServiceID(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
