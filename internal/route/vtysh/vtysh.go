// Package vtysh decodes the "show ip route" summary printed by Quagga/FRR.
//
// The format is positional and only loosely specified, so the parser keys on
// the literal anchor tokens "via" and "is" exactly like the router prints
// them. Consumers only see route.Record values, the heuristics stay here.
package vtysh

import (
	"bufio"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/DrC0ns0le/net-alto/internal/route"
)

// ErrUnrecognizedRouteLineFormat is returned for a data line that matches
// none of the known shapes.
var ErrUnrecognizedRouteLineFormat = errors.New("unrecognized route line format")

const (
	headerLines = 4
	minLines    = headerLines + 1

	anchorVia = "via"
	anchorIs  = "is"
)

// Command is what the collector runs to obtain the table.
var Command = []string{"vtysh", "-c", "show ip route"}

// Parse reads the command output from r. See ParseLines.
func Parse(r io.Reader) ([]route.Record, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading route output")
	}
	return ParseLines(lines)
}

// ParseLines decodes the output lines, header included. Output shorter than
// the header plus one line means the router had nothing to report and yields
// no records and no error.
func ParseLines(lines []string) ([]route.Record, error) {
	if len(lines) < minLines {
		return nil, nil
	}

	p := &parser{}
	records := make([]route.Record, 0, len(lines)-headerLines)
	for i, line := range lines[headerLines:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		record, err := p.parseLine(line)
		if err != nil {
			return nil, errors.WithMessagef(err, "line %d", i+headerLines+1)
		}
		records = append(records, record)
	}
	return records, nil
}

// parser carries the last route seen, continuation lines describe another
// next hop for it.
type parser struct {
	lastProto  route.Protocol
	lastSubnet netip.Prefix
	lastAD     int
	lastRD     int
	hasRoute   bool
}

func (p *parser) parseLine(line string) (route.Record, error) {
	var (
		record route.Record
		cached bool
	)

	// type code
	if line[0] == ' ' {
		if !p.hasRoute {
			return route.Record{}, errors.Wrap(ErrUnrecognizedRouteLineFormat, "continuation without a preceding route")
		}
		record.Protocol = p.lastProto
		cached = true
	} else {
		record.Protocol = route.Protocol(line[:1])

		// code present, clear cache
		p.lastProto = record.Protocol
		p.lastSubnet = netip.Prefix{}
		p.lastAD, p.lastRD = 0, 0
		p.hasRoute = false
	}

	if len(line) > 1 && line[1] == '>' {
		record.Flags |= route.FlagSelected
	}
	if len(line) > 2 && line[2] == '*' {
		record.Flags |= route.FlagFIB | route.FlagUp
	}

	tokens := strings.Fields(line)

	var err error
	switch {
	case record.Protocol == route.ProtocolConnected:
		err = p.parseConnected(&record, tokens)
	case indexOf(tokens, anchorVia) >= 0:
		err = p.parseVia(&record, tokens, cached)
	case indexOf(tokens, anchorIs) >= 0:
		err = p.parseIs(&record, tokens, cached)
	default:
		err = errors.Wrapf(ErrUnrecognizedRouteLineFormat, "no anchor in %q", line)
	}
	if err != nil {
		return route.Record{}, err
	}

	p.hasRoute = true
	return record, nil
}

// parseConnected handles "C>* 10.0.0.0/24 is directly connected, eth0".
func (p *parser) parseConnected(record *route.Record, tokens []string) error {
	at := indexOf(tokens, anchorIs)
	if at < 0 {
		return errors.Wrap(ErrUnrecognizedRouteLineFormat, "connected route without anchor")
	}

	subnet, err := tokenAt(tokens, at-1)
	if err != nil {
		return err
	}
	adapter, err := tokenAt(tokens, at+3)
	if err != nil {
		return err
	}

	record.Destination, err = parsePrefix(subnet)
	if err != nil {
		return err
	}
	record.Interface = strings.TrimRight(adapter, ",")
	p.lastSubnet = record.Destination
	return nil
}

// parseVia handles "O>* 10.0.1.0/24 [110/20] via 10.0.0.2, eth0" and its
// continuation lines "  *   via 10.0.2.2, eth1".
func (p *parser) parseVia(record *route.Record, tokens []string, cached bool) error {
	at := indexOf(tokens, anchorVia)

	if cached {
		p.fromCache(record)
	} else if err := p.parsePrefixAndDistance(record, tokens, at); err != nil {
		return err
	}

	gw, err := tokenAt(tokens, at+1)
	if err != nil {
		return err
	}
	adapter, err := tokenAt(tokens, at+2)
	if err != nil {
		return err
	}

	record.Gateway, err = netip.ParseAddr(strings.TrimRight(gw, ","))
	if err != nil {
		return errors.Wrapf(ErrUnrecognizedRouteLineFormat, "gateway %q", gw)
	}
	record.Flags |= route.FlagGateway
	record.Interface = strings.TrimRight(adapter, ",")
	return nil
}

// parseIs handles routed entries without a next hop, for example
// "O   10.0.0.0/24 [110/10] is directly connected, eth0".
func (p *parser) parseIs(record *route.Record, tokens []string, cached bool) error {
	at := indexOf(tokens, anchorIs)

	if cached {
		p.fromCache(record)
	} else if err := p.parsePrefixAndDistance(record, tokens, at); err != nil {
		return err
	}

	adapter, err := tokenAt(tokens, at+3)
	if err != nil {
		return err
	}
	record.Interface = strings.TrimRight(adapter, ",")
	return nil
}

func (p *parser) parsePrefixAndDistance(record *route.Record, tokens []string, at int) error {
	subnet, err := tokenAt(tokens, at-2)
	if err != nil {
		return err
	}
	distance, err := tokenAt(tokens, at-1)
	if err != nil {
		return err
	}

	record.Destination, err = parsePrefix(subnet)
	if err != nil {
		return err
	}

	parts := strings.Split(strings.Trim(distance, "[]"), "/")
	if len(parts) != 2 {
		return errors.Wrapf(ErrUnrecognizedRouteLineFormat, "distance %q", distance)
	}
	ad, errAD := strconv.Atoi(parts[0])
	rd, errRD := strconv.Atoi(parts[1])
	if errAD != nil || errRD != nil {
		return errors.Wrapf(ErrUnrecognizedRouteLineFormat, "distance %q", distance)
	}

	record.AdminDistance, record.Metric, record.HasDistance = ad, rd, true
	p.lastSubnet, p.lastAD, p.lastRD = record.Destination, ad, rd
	return nil
}

func (p *parser) fromCache(record *route.Record) {
	record.Destination = p.lastSubnet
	record.AdminDistance, record.Metric = p.lastAD, p.lastRD
	record.HasDistance = p.lastProto != route.ProtocolConnected
}

func indexOf(tokens []string, anchor string) int {
	for i, token := range tokens {
		if token == anchor {
			return i
		}
	}
	return -1
}

func tokenAt(tokens []string, i int) (string, error) {
	if i < 0 || i >= len(tokens) {
		return "", errors.Wrapf(ErrUnrecognizedRouteLineFormat, "missing token at offset %d in %q", i, strings.Join(tokens, " "))
	}
	return tokens[i], nil
}

func parsePrefix(s string) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, errors.Wrapf(ErrUnrecognizedRouteLineFormat, "subnet %q", s)
	}
	return prefix, nil
}
