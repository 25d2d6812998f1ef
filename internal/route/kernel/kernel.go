// Package kernel decodes the kernel IPv4 routing table as exposed in
// /proc/net/route.
package kernel

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"io"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/DrC0ns0le/net-alto/internal/route"
)

// ErrMalformedRouteLine is returned when a line does not have exactly the
// eleven expected columns or a column cannot be decoded.
var ErrMalformedRouteLine = errors.New("malformed route line")

const (
	colIface = iota
	colDestination
	colGateway
	colFlags
	colRefCnt
	colUse
	colMetric
	colMask
	colMTU
	colWindow
	colIRTT

	columns
)

// Parse reads a routing table using the byte order of the running platform.
func Parse(r io.Reader) ([]route.Record, error) {
	return ParseWithByteOrder(r, binary.NativeEndian)
}

// ParseWithByteOrder reads a routing table whose hexadecimal addresses were
// written in the given byte order. The first line is a header and blank lines
// are skipped.
func ParseWithByteOrder(r io.Reader, order binary.ByteOrder) ([]route.Record, error) {
	var (
		records []route.Record
		lineNo  int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if lineNo == 1 {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		record, err := ParseLine(line, order)
		if err != nil {
			return nil, errors.WithMessagef(err, "line %d", lineNo)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading route table")
	}

	return records, nil
}

// ParseLines is Parse over lines already split by the caller, header included.
func ParseLines(lines []string, order binary.ByteOrder) ([]route.Record, error) {
	return ParseWithByteOrder(strings.NewReader(strings.Join(lines, "\n")), order)
}

// ParseLine decodes a single data line.
func ParseLine(line string, order binary.ByteOrder) (route.Record, error) {
	// the kernel pads every line with trailing blanks
	fields := strings.Split(strings.TrimRight(line, " \r\n"), "\t")
	if len(fields) != columns {
		return route.Record{}, errors.Wrapf(ErrMalformedRouteLine, "expected %d columns, got %d", columns, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	var (
		record = route.Record{
			Interface: fields[colIface],
			Protocol:  route.ProtocolKernel,
		}
		err error
	)

	dst, err := decodeAddr(fields[colDestination], order)
	if err != nil {
		return route.Record{}, errors.WithMessage(err, "destination")
	}
	record.Gateway, err = decodeAddr(fields[colGateway], order)
	if err != nil {
		return route.Record{}, errors.WithMessage(err, "gateway")
	}
	mask, err := decodeAddr(fields[colMask], order)
	if err != nil {
		return route.Record{}, errors.WithMessage(err, "mask")
	}
	maskBytes := mask.As4()
	ones, bits := net.IPMask(maskBytes[:]).Size()
	if bits == 0 {
		return route.Record{}, errors.Wrapf(ErrMalformedRouteLine, "non-contiguous mask %s", mask)
	}
	record.Destination = netip.PrefixFrom(dst, ones)

	// flags are printed by the kernel as %04X
	flags, err := strconv.ParseUint(fields[colFlags], 16, 16)
	if err != nil {
		return route.Record{}, errors.Wrapf(ErrMalformedRouteLine, "flags %q", fields[colFlags])
	}
	record.Flags = route.Flags(flags) & (route.FlagUp | route.FlagGateway)

	for _, col := range []struct {
		idx  int
		name string
		dst  *int
	}{
		{colRefCnt, "refcnt", &record.RefCnt},
		{colUse, "use", &record.Use},
		{colMetric, "metric", &record.Metric},
		{colMTU, "mtu", &record.MTU},
		{colWindow, "window", &record.Window},
		{colIRTT, "irtt", &record.IRTT},
	} {
		v, err := strconv.Atoi(fields[col.idx])
		if err != nil {
			return route.Record{}, errors.Wrapf(ErrMalformedRouteLine, "%s %q", col.name, fields[col.idx])
		}
		*col.dst = v
	}

	return record, nil
}

// decodeAddr turns an 8 digit hex column into an IPv4 address. The digits
// are the in-memory bytes of a 32 bit integer in the given byte order.
func decodeAddr(field string, order binary.ByteOrder) (netip.Addr, error) {
	raw, err := hex.DecodeString(field)
	if err != nil || len(raw) != 4 {
		return netip.Addr{}, errors.Wrapf(ErrMalformedRouteLine, "bad address %q", field)
	}
	v := order.Uint32(raw)
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}), nil
}

// EncodeAddr is the inverse of the column decoding, used to build tables.
func EncodeAddr(addr netip.Addr, order binary.ByteOrder) string {
	b := addr.As4()
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	raw := make([]byte, 4)
	order.PutUint32(raw, v)
	return strings.ToUpper(hex.EncodeToString(raw))
}
