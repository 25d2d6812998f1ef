package topology

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Description is the static topology as written by the network simulator.
//
//	links:     link name -> [global adapter A, global adapter B]
//	names:     hostname  -> [[global adapter, local adapter], ...]
//	types:     hostname  -> "router" | "user" (default router)
//	params:    link name -> capacity (Mbps) and metric
//	addresses: hostname  -> local adapter -> ["10.0.0.1/24", ...]
type Description struct {
	Links     map[string][]string            `json:"links" yaml:"links"`
	Names     map[string][][]string          `json:"names" yaml:"names"`
	Types     map[string]DeviceClass         `json:"types,omitempty" yaml:"types,omitempty"`
	Params    map[string]LinkParams          `json:"params,omitempty" yaml:"params,omitempty"`
	Addresses map[string]map[string][]string `json:"addresses,omitempty" yaml:"addresses,omitempty"`
}

// LinkParams are optional per link attributes. Nil means unknown.
type LinkParams struct {
	Capacity *float64 `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Metric   *int     `json:"metric,omitempty" yaml:"metric,omitempty"`
}

// Format of a serialized description.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatOf picks the format from the file extension, JSON unless it is a
// YAML one.
func FormatOf(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ReadFile reads and decodes a description file.
func ReadFile(filename string) (Description, []byte, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return Description{}, nil, errors.Wrapf(err, "error reading topology %s", filename)
	}
	desc, err := Decode(raw, FormatOf(filename))
	if err != nil {
		return Description{}, nil, errors.WithMessagef(err, "topology %s", filename)
	}
	return desc, raw, nil
}

// Decode parses a description. Unknown fields are rejected so typos in the
// simulator output do not silently drop links.
func Decode(raw []byte, format Format) (Description, error) {
	var desc Description

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&desc); err != nil {
			return Description{}, errors.Wrap(err, "error decoding yaml")
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&desc); err != nil {
			return Description{}, errors.Wrap(err, "error decoding json")
		}
	}

	return desc, nil
}

// Encode serializes the description, used by tests and the client.
func (d Description) Encode(format Format) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(d)
	}
	return json.MarshalIndent(d, "", "\t")
}

// LoadFile reads a description file and builds a Topology from it. An invalid
// description yields both the topology (with Valid false) and an error
// wrapping ErrTopologyInvalid.
func LoadFile(filename string) (*Topology, error) {
	desc, _, err := ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return New(desc)
}
