package message

// Array helpers: a varulong element count followed by that many elements.
// Bool arrays need no special packing code — AddBits(bit, 1) already packs
// 8 booleans into a single byte because the underlying cursor is
// bit-granular, not byte-granular.

func (m *Message) AddBoolArray(v []bool) error {
	if err := m.AddVarULong(uint64(len(v))); err != nil {
		return err
	}
	for _, b := range v {
		if err := m.AddBool(b); err != nil {
			return err
		}
	}
	return nil
}

func (m *Message) GetBoolArray() ([]bool, error) {
	n, err := m.GetVarULong()
	if err != nil {
		return nil, err
	}
	out := make([]bool, n)
	for i := range out {
		out[i], err = m.GetBool()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *Message) AddU8Array(v []uint8) error {
	if err := m.AddVarULong(uint64(len(v))); err != nil {
		return err
	}
	for _, e := range v {
		if err := m.AddU8(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Message) GetU8Array() ([]uint8, error) {
	n, err := m.GetVarULong()
	if err != nil {
		return nil, err
	}
	out := make([]uint8, n)
	for i := range out {
		out[i], err = m.GetU8()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *Message) AddI8Array(v []int8) error {
	if err := m.AddVarULong(uint64(len(v))); err != nil {
		return err
	}
	for _, e := range v {
		if err := m.AddI8(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Message) GetI8Array() ([]int8, error) {
	n, err := m.GetVarULong()
	if err != nil {
		return nil, err
	}
	out := make([]int8, n)
	for i := range out {
		out[i], err = m.GetI8()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *Message) AddU16Array(v []uint16) error {
	if err := m.AddVarULong(uint64(len(v))); err != nil {
		return err
	}
	for _, e := range v {
		if err := m.AddU16(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Message) GetU16Array() ([]uint16, error) {
	n, err := m.GetVarULong()
	if err != nil {
		return nil, err
	}
	out := make([]uint16, n)
	for i := range out {
		out[i], err = m.GetU16()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *Message) AddI16Array(v []int16) error {
	if err := m.AddVarULong(uint64(len(v))); err != nil {
		return err
	}
	for _, e := range v {
		if err := m.AddI16(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Message) GetI16Array() ([]int16, error) {
	n, err := m.GetVarULong()
	if err != nil {
		return nil, err
	}
	out := make([]int16, n)
	for i := range out {
		out[i], err = m.GetI16()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *Message) AddU32Array(v []uint32) error {
	if err := m.AddVarULong(uint64(len(v))); err != nil {
		return err
	}
	for _, e := range v {
		if err := m.AddU32(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Message) GetU32Array() ([]uint32, error) {
	n, err := m.GetVarULong()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i], err = m.GetU32()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *Message) AddI32Array(v []int32) error {
	if err := m.AddVarULong(uint64(len(v))); err != nil {
		return err
	}
	for _, e := range v {
		if err := m.AddI32(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Message) GetI32Array() ([]int32, error) {
	n, err := m.GetVarULong()
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		out[i], err = m.GetI32()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *Message) AddU64Array(v []uint64) error {
	if err := m.AddVarULong(uint64(len(v))); err != nil {
		return err
	}
	for _, e := range v {
		if err := m.AddU64(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Message) GetU64Array() ([]uint64, error) {
	n, err := m.GetVarULong()
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		out[i], err = m.GetU64()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *Message) AddI64Array(v []int64) error {
	if err := m.AddVarULong(uint64(len(v))); err != nil {
		return err
	}
	for _, e := range v {
		if err := m.AddI64(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Message) GetI64Array() ([]int64, error) {
	n, err := m.GetVarULong()
	if err != nil {
		return nil, err
	}
	out := make([]int64, n)
	for i := range out {
		out[i], err = m.GetI64()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *Message) AddF32Array(v []float32) error {
	if err := m.AddVarULong(uint64(len(v))); err != nil {
		return err
	}
	for _, e := range v {
		if err := m.AddF32(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Message) GetF32Array() ([]float32, error) {
	n, err := m.GetVarULong()
	if err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := range out {
		out[i], err = m.GetF32()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *Message) AddF64Array(v []float64) error {
	if err := m.AddVarULong(uint64(len(v))); err != nil {
		return err
	}
	for _, e := range v {
		if err := m.AddF64(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Message) GetF64Array() ([]float64, error) {
	n, err := m.GetVarULong()
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i], err = m.GetF64()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *Message) AddStringArray(v []string) error {
	if err := m.AddVarULong(uint64(len(v))); err != nil {
		return err
	}
	for _, e := range v {
		if err := m.AddString(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Message) GetStringArray() ([]string, error) {
	n, err := m.GetVarULong()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		out[i], err = m.GetString()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
