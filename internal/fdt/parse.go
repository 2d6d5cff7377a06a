package fdt

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Parse decodes an FDT blob into a node tree. Property values are returned
// as raw Bytes; empty properties come back as Flag.
func Parse(blob []byte) (Node, error) {
	if len(blob) < fdtHeaderSize {
		return Node{}, fmt.Errorf("fdt: blob too short (%d bytes)", len(blob))
	}
	be := binary.BigEndian
	if magic := be.Uint32(blob[0:]); magic != fdtMagic {
		return Node{}, fmt.Errorf("fdt: bad magic 0x%08x", magic)
	}
	total := be.Uint32(blob[4:])
	offStruct := be.Uint32(blob[8:])
	offStrings := be.Uint32(blob[12:])
	sizeStrings := be.Uint32(blob[32:])
	sizeStruct := be.Uint32(blob[36:])
	if uint64(total) > uint64(len(blob)) ||
		uint64(offStruct)+uint64(sizeStruct) > uint64(total) ||
		uint64(offStrings)+uint64(sizeStrings) > uint64(total) {
		return Node{}, fmt.Errorf("fdt: header describes blocks outside the blob")
	}

	p := &parser{
		structs: blob[offStruct : offStruct+sizeStruct],
		strings: blob[offStrings : offStrings+sizeStrings],
	}
	tok, err := p.token()
	if err != nil {
		return Node{}, err
	}
	if tok != fdtBeginNodeToken {
		return Node{}, fmt.Errorf("fdt: structure block starts with token %d", tok)
	}
	root, err := p.node()
	if err != nil {
		return Node{}, err
	}
	for {
		tok, err := p.token()
		if err != nil {
			return Node{}, err
		}
		switch tok {
		case fdtNopToken:
			continue
		case fdtEndToken:
			return root, nil
		default:
			return Node{}, fmt.Errorf("fdt: unexpected token %d after root node", tok)
		}
	}
}

type parser struct {
	structs []byte
	strings []byte
	off     int
}

func (p *parser) token() (uint32, error) {
	if p.off+4 > len(p.structs) {
		return 0, fmt.Errorf("fdt: truncated structure block at 0x%x", p.off)
	}
	v := binary.BigEndian.Uint32(p.structs[p.off:])
	p.off += 4
	return v, nil
}

func (p *parser) align() {
	p.off = (p.off + 3) &^ 3
}

func (p *parser) cstring(buf []byte, off int) (string, error) {
	if off < 0 || off > len(buf) {
		return "", fmt.Errorf("fdt: string offset 0x%x out of range", off)
	}
	end := bytes.IndexByte(buf[off:], 0)
	if end < 0 {
		return "", fmt.Errorf("fdt: unterminated string at 0x%x", off)
	}
	return string(buf[off : off+end]), nil
}

// node parses a node whose begin token has already been consumed.
func (p *parser) node() (Node, error) {
	name, err := p.cstring(p.structs, p.off)
	if err != nil {
		return Node{}, err
	}
	p.off += len(name) + 1
	p.align()

	n := Node{Name: name}
	for {
		tok, err := p.token()
		if err != nil {
			return Node{}, err
		}
		switch tok {
		case fdtPropToken:
			if p.off+8 > len(p.structs) {
				return Node{}, fmt.Errorf("fdt: truncated property in %q", name)
			}
			length := int(binary.BigEndian.Uint32(p.structs[p.off:]))
			nameOff := int(binary.BigEndian.Uint32(p.structs[p.off+4:]))
			p.off += 8
			if length < 0 || p.off+length > len(p.structs) {
				return Node{}, fmt.Errorf("fdt: property value overruns structure block in %q", name)
			}
			propName, err := p.cstring(p.strings, nameOff)
			if err != nil {
				return Node{}, err
			}
			prop := Property{Flag: length == 0}
			if length > 0 {
				prop.Bytes = append([]byte(nil), p.structs[p.off:p.off+length]...)
			}
			if n.Properties == nil {
				n.Properties = make(map[string]Property)
			}
			n.Properties[propName] = prop
			p.off += length
			p.align()
		case fdtBeginNodeToken:
			child, err := p.node()
			if err != nil {
				return Node{}, err
			}
			n.Children = append(n.Children, child)
		case fdtEndNodeToken:
			return n, nil
		case fdtNopToken:
		default:
			return Node{}, fmt.Errorf("fdt: unexpected token %d in %q", tok, name)
		}
	}
}
