package crdt

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Actor is a 128-bit identifier chosen by each replica at initialization.
// Uniqueness across replicas sharing a store is the only requirement; no
// coordination is needed to hand them out.
type Actor [16]byte

// NewActor generates a fresh, effectively-unique Actor using a random UUID.
func NewActor() Actor {
	var a Actor
	u := uuid.New()
	copy(a[:], u[:])
	return a
}

// ActorFromBytes interprets the first 16 bytes of b as an Actor. It is used
// when an Actor has been recovered from storage rather than generated fresh.
func ActorFromBytes(b []byte) (Actor, error) {
	var a Actor
	if len(b) != len(a) {
		return a, fmt.Errorf("crdt: actor must be %d bytes, got %d", len(a), len(b))
	}
	copy(a[:], b)
	return a, nil
}

func (a Actor) String() string {
	return hex.EncodeToString(a[:])
}

// MarshalText lets Actor be used as a map key under encoding/json, which
// requires text-marshalable keys for non-string map types.
func (a Actor) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (a *Actor) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("crdt: decode actor: %w", err)
	}
	decoded, err := ActorFromBytes(b)
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}
