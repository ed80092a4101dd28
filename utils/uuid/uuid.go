// Package uuid provides UUID-based identifier generation and test utilities.
package uuid

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDers generate identifiers.
type IDer interface {
	ID() string
}

// UUID is an ID generator utilizing a UUID.
type UUID struct{}

// NewUUID creates a new UUID ID generator.
func NewUUID() *UUID {
	return &UUID{}
}

// ID generates a new UUID ID.
func (u *UUID) ID() string {
	return uuid.NewString()
}

// FlowIDs generates short flow identifiers.
// Flow IDs are 8 upper-case hex digits taken from a random UUID.
type FlowIDs struct{}

// NewFlowIDs creates a new flow ID generator.
func NewFlowIDs() *FlowIDs {
	return &FlowIDs{}
}

// ID generates a new flow ID, e.g. "4F2A09C1".
func (f *FlowIDs) ID() string {
	u := uuid.New()
	return fmt.Sprintf("%08X", uint32(u[0])<<24|uint32(u[1])<<16|uint32(u[2])<<8|uint32(u[3]))
}

// StaticIDs is an ID generator thats cycles through provided IDs.
type StaticIDs struct {
	mu  sync.Mutex
	ids []string
	i   int
}

// NewStaticIDs creates a new static ID generator.
func NewStaticIDs(ids ...string) *StaticIDs {
	return &StaticIDs{ids: ids}
}

// ID returns the next ID.
// It will continually cycle through the IDs.
func (s *StaticIDs) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.ids[s.i%len(s.ids)]
	s.i++
	return id
}
