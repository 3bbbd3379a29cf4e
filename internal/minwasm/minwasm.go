// Package minwasm assembles minimal core wasm binaries for tests: void
// functions exported under arbitrary names, optionally trapping, plus an
// optional exported memory.
package minwasm

// Export is one exported void function.
type Export struct {
	Name string
	// Trap makes the function body a single unreachable instruction.
	Trap bool
}

// Module describes the binary to assemble.
type Module struct {
	// Memory adds a one-page exported memory named "memory".
	Memory  bool
	Exports []Export
}

// Bytes assembles the module.
func (m Module) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// Single () -> () function type.
	out = append(out, section(0x01, []byte{0x01, 0x60, 0x00, 0x00})...)

	n := len(m.Exports)
	if n > 0 {
		fs := []byte{byte(n)}
		for range m.Exports {
			fs = append(fs, 0x00)
		}
		out = append(out, section(0x03, fs)...)
	}

	if m.Memory {
		out = append(out, section(0x05, []byte{0x01, 0x00, 0x01})...)
	}

	count := n
	if m.Memory {
		count++
	}
	if count > 0 {
		es := []byte{byte(count)}
		for i, e := range m.Exports {
			es = append(es, byte(len(e.Name)))
			es = append(es, e.Name...)
			es = append(es, 0x00, byte(i))
		}
		if m.Memory {
			es = append(es, byte(len("memory")))
			es = append(es, "memory"...)
			es = append(es, 0x02, 0x00)
		}
		out = append(out, section(0x07, es)...)
	}

	if n > 0 {
		cs := []byte{byte(n)}
		for _, e := range m.Exports {
			if e.Trap {
				cs = append(cs, 0x03, 0x00, 0x00, 0x0b)
			} else {
				cs = append(cs, 0x02, 0x00, 0x0b)
			}
		}
		out = append(out, section(0x0a, cs)...)
	}

	return out
}

// Empty returns the smallest valid module.
func Empty() []byte {
	return Module{}.Bytes()
}

func section(id byte, contents []byte) []byte {
	if len(contents) >= 0x80 {
		panic("minwasm: section needs multi-byte leb128")
	}
	return append([]byte{id, byte(len(contents))}, contents...)
}
