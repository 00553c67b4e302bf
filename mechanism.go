// SPDX-License-Identifier: Apache-2.0

package sasl

import "io"

// StepStatus reports the outcome of a single [Mechanism.Step] call.
type StepStatus uint8

const (
	// StepContinue means the mechanism needs at least one more round trip.
	StepContinue StepStatus = iota
	// StepDone means the mechanism has nothing more to send or receive.
	StepDone
)

// Mechanism is the capability interface every mechanism implementation
// satisfies: one concrete type per mechanism, constructed fresh for every
// session by the [Descriptor]'s factory closures.
type Mechanism interface {
	// Step consumes one token from the peer (nil if this side speaks
	// first and has nothing to consume yet) and writes its reply, if any,
	// to w. It returns how many bytes were written and whether the
	// mechanism is now finished.
	Step(ctx *Context, input []byte, w io.Writer) (StepStatus, int, error)

	// HasSecurityLayer reports whether, once Step returns StepDone, this
	// instance should be retained by the [Session] to service Encode and
	// Decode.
	HasSecurityLayer() bool

	// Encode and Decode implement the post-handshake security layer. They
	// return KindNoSecurityLayer when HasSecurityLayer is false.
	Encode(input []byte, w io.Writer) (int, error)
	Decode(input []byte, w io.Writer) (int, error)
}

// NoSecurityLayer can be embedded by mechanisms that never install a
// security layer, to satisfy the Encode/Decode/HasSecurityLayer part of the
// [Mechanism] interface for free.
type NoSecurityLayer struct{}

func (NoSecurityLayer) HasSecurityLayer() bool { return false }

func (NoSecurityLayer) Encode([]byte, io.Writer) (int, error) { return 0, ErrNoSecurityLayer }

func (NoSecurityLayer) Decode([]byte, io.Writer) (int, error) { return 0, ErrNoSecurityLayer }

// Side identifies which peer of an exchange a mechanism factory builds an
// instance for, and which peer a given mechanism's protocol has speak
// first.
type Side uint8

const (
	SideClient Side = iota
	SideServer
)

func (s Side) String() string {
	if s == SideServer {
		return "server"
	}
	return "client"
}

// Factory constructs a fresh [Mechanism] instance for one session.
type Factory func() Mechanism

// Descriptor is the immutable, process-wide metadata describing one
// registered mechanism. Descriptors never mutate after registration.
type Descriptor struct {
	Name Mechname
	// Priority ranks mechanisms for suggestion purposes; higher wins.
	Priority int
	// First names which side sends the first token.
	First Side
	// NewClient/NewServer are nil when the mechanism does not support
	// that side.
	NewClient Factory
	NewServer Factory
	// RequiresChannelBinding marks PLUS-style mechanisms that must not be
	// suggested unless channel-binding material is available (SCRAM-*-PLUS).
	RequiresChannelBinding bool
}
