package fdt

import (
	"encoding/binary"
	"fmt"
)

// Property describes a single device-tree property in a JSON-friendly form.
// Exactly one of the typed fields should be populated for a given property.
// Properties read back by Parse only carry Bytes.
type Property struct {
	Strings []string `json:"strings,omitempty"`
	U32     []uint32 `json:"u32,omitempty"`
	U64     []uint64 `json:"u64,omitempty"`
	Bytes   []byte   `json:"bytes,omitempty"`
	Flag    bool     `json:"flag,omitempty"`
}

// Kind returns the name of the populated field or an empty string if none are set.
func (p Property) Kind() string {
	switch {
	case len(p.Strings) > 0:
		return "strings"
	case len(p.U32) > 0:
		return "u32"
	case len(p.U64) > 0:
		return "u64"
	case len(p.Bytes) > 0:
		return "bytes"
	case p.Flag:
		return "flag"
	default:
		return ""
	}
}

// DefinedCount reports how many distinct fields on the property are populated.
func (p Property) DefinedCount() int {
	count := 0
	for _, set := range []bool{len(p.Strings) > 0, len(p.U32) > 0, len(p.U64) > 0, len(p.Bytes) > 0, p.Flag} {
		if set {
			count++
		}
	}
	return count
}

// encode returns the big-endian property value.
func (p Property) encode() ([]byte, error) {
	switch p.DefinedCount() {
	case 0:
		return nil, fmt.Errorf("property has no values")
	case 1:
	default:
		return nil, fmt.Errorf("property has multiple value kinds")
	}

	var data []byte
	switch p.Kind() {
	case "strings":
		for _, v := range p.Strings {
			data = append(data, v...)
			data = append(data, 0)
		}
	case "u32":
		data = make([]byte, 0, len(p.U32)*4)
		for _, v := range p.U32 {
			data = binary.BigEndian.AppendUint32(data, v)
		}
	case "u64":
		data = make([]byte, 0, len(p.U64)*8)
		for _, v := range p.U64 {
			data = binary.BigEndian.AppendUint64(data, v)
		}
	case "bytes":
		data = append(data, p.Bytes...)
	}
	return data, nil
}

// Cells decodes the property as a list of 32-bit cells, whichever field
// carries it.
func (p Property) Cells() ([]uint32, error) {
	if p.DefinedCount() == 0 {
		return nil, nil
	}
	raw, err := p.encode()
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("property length %d is not a multiple of 4", len(raw))
	}
	cells := make([]uint32, len(raw)/4)
	for i := range cells {
		cells[i] = binary.BigEndian.Uint32(raw[i*4:])
	}
	return cells, nil
}

// Node describes a device-tree node using JSON-friendly structures.
type Node struct {
	Name       string              `json:"name"`
	Properties map[string]Property `json:"properties,omitempty"`
	Children   []Node              `json:"children,omitempty"`
}

// Child returns the direct child with the given name.
func (n Node) Child(name string) (Node, bool) {
	for _, c := range n.Children {
		if c.Name == name {
			return c, true
		}
	}
	return Node{}, false
}
