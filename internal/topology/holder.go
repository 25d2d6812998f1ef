package topology

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// Holder publishes the current topology to concurrent readers. A reload
// swaps in a fully built replacement, readers never see a partial one.
type Holder struct {
	current atomic.Pointer[Topology]
}

func NewHolder(t *Topology) *Holder {
	h := &Holder{}
	if t != nil {
		h.current.Store(t)
	}
	return h
}

// Load returns the current topology, nil before the first successful Swap.
func (h *Holder) Load() *Topology {
	return h.current.Load()
}

// Swap replaces the current topology. Invalid topologies are refused and
// the previous one stays in place.
func (h *Holder) Swap(t *Topology) error {
	if t == nil {
		return errors.Wrap(ErrTopologyInvalid, "nil topology")
	}
	if err := t.Validate(); err != nil {
		return err
	}
	h.current.Store(t)
	return nil
}

// ReloadFile builds a topology from filename and swaps it in.
func (h *Holder) ReloadFile(filename string) (*Topology, error) {
	t, err := LoadFile(filename)
	if err != nil {
		return nil, err
	}
	if err := h.Swap(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Ready reports whether a valid topology has been published.
func (h *Holder) Ready() bool {
	return h.current.Load() != nil
}
