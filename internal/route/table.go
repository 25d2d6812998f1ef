package route

import (
	"encoding/binary"
	"net/netip"
	"sort"

	"github.com/cespare/xxhash"
)

// Table is an immutable route set ordered by specificity: longest prefix
// first, then lowest metric, then the order the records were seen in.
type Table struct {
	records []Record
}

func NewTable(records []Record) Table {
	sorted := make([]Record, len(records))
	copy(sorted, records)

	sort.SliceStable(sorted, func(i, j int) bool {
		bi, bj := sorted[i].Destination.Bits(), sorted[j].Destination.Bits()
		if bi != bj {
			return bi > bj
		}
		return sorted[i].Metric < sorted[j].Metric
	})

	return Table{records: sorted}
}

// Records returns the records in table order. The slice must not be modified.
func (t Table) Records() []Record { return t.records }

func (t Table) Len() int { return len(t.records) }

// Lookup returns the most specific active route covering addr.
func (t Table) Lookup(addr netip.Addr) (Record, bool) {
	addr = addr.Unmap()
	for _, r := range t.records {
		if !r.Active() {
			continue
		}
		if r.Destination.Masked().Contains(addr) {
			return r, true
		}
	}
	return Record{}, false
}

// Hash fingerprints the table content so callers can skip no-op updates.
func (t Table) Hash() uint64 {
	h := xxhash.New()
	for _, r := range t.records {
		h.Write([]byte(r.Destination.String()))
		h.Write([]byte(r.Gateway.String()))
		h.Write([]byte(r.Interface))
		h.Write([]byte(r.Protocol))
		binary.Write(h, binary.LittleEndian, uint16(r.Flags))
		binary.Write(h, binary.LittleEndian, uint32(r.AdminDistance))
		binary.Write(h, binary.LittleEndian, uint32(r.Metric))
	}
	return h.Sum64()
}
