package camera

import (
	"errors"
	"fmt"
)

// PortRing is the candidate port set with exactly one current port.
// It is a value type: transitions return a new ring and never mutate the
// receiver, so the rotation policy is testable without any network code.
type PortRing struct {
	ports []int
	index int
}

// NewPortRing creates a ring positioned on the first port.
func NewPortRing(ports []int) (PortRing, error) {
	if len(ports) == 0 {
		return PortRing{}, errors.New("camera: at least one candidate port is required")
	}
	seen := make(map[int]struct{}, len(ports))
	for _, p := range ports {
		if p <= 0 || p > 65535 {
			return PortRing{}, fmt.Errorf("camera: invalid port %d", p)
		}
		if _, dup := seen[p]; dup {
			return PortRing{}, fmt.Errorf("camera: duplicate port %d", p)
		}
		seen[p] = struct{}{}
	}
	cp := make([]int, len(ports))
	copy(cp, ports)
	return PortRing{ports: cp}, nil
}

// Current returns the port currently in use.
func (r PortRing) Current() int {
	return r.ports[r.index]
}

// Index returns the position of the current port.
func (r PortRing) Index() int {
	return r.index
}

// Len returns the number of candidate ports.
func (r PortRing) Len() int {
	return len(r.ports)
}

// OnFailure returns the ring advanced to the next candidate, wrapping around.
func (r PortRing) OnFailure() PortRing {
	return PortRing{ports: r.ports, index: (r.index + 1) % len(r.ports)}
}

// At returns the ring positioned on index i (modulo the ring size).
func (r PortRing) At(i int) PortRing {
	n := len(r.ports)
	return PortRing{ports: r.ports, index: ((i % n) + n) % n}
}

// Ports returns a copy of the candidate list.
func (r PortRing) Ports() []int {
	cp := make([]int, len(r.ports))
	copy(cp, r.ports)
	return cp
}
