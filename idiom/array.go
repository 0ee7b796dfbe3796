package idiom

import "github.com/dhamidi/jdec/ir"

// ArrayInit turns a fresh array filled by stores at consecutive constant
// indices into an array literal. The stores must follow the allocation's
// index order without gaps and end at the last index. Default elements
// before the first store are filled in, at most as many as there are stores.
type ArrayInit struct{}

func (ArrayInit) Name() string { return "array-init" }

func (ArrayInit) Apply(m *ir.Method, list []ir.ID) ([]ir.ID, bool) {
	changed := false
	for i := 0; i < len(list); i++ {
		st := m.At(list[i])
		if st.Op != ir.OpArrayStore {
			continue
		}
		arr := m.At(st.Args[0])
		if arr.Op != ir.OpNewArray || len(arr.Args) != 1 {
			continue
		}
		length, ok := constInt(m, arr.Args[0])
		if !ok {
			continue
		}

		first, last := -1, -1
		var values []ir.ID
		j := i
		for ; j < len(list); j++ {
			s := m.At(list[j])
			if s.Op != ir.OpArrayStore || s.Args[0] != arr.ID {
				break
			}
			idx, ok := constInt(m, s.Args[1])
			if !ok || (first >= 0 && idx != last+1) {
				first = -1
				break
			}
			if first < 0 {
				first = idx
			}
			last = idx
			values = append(values, s.Args[2])
		}
		if first < 0 || last+1 != length || first > len(values) || j >= len(list) {
			continue
		}
		consumer := list[j]
		if m.Count(consumer, arr.ID) != 1 || references(m, list, arr.ID) != j-i+1 {
			continue
		}

		elem := arr.Type[1:]
		elems := make([]ir.ID, 0, length)
		for k := 0; k < first; k++ {
			elems = append(elems, m.Derive(arr.ID, &ir.Instruction{Op: ir.OpConst, Value: zero(elem), Type: elem}))
		}
		elems = append(elems, values...)
		lit := m.Derive(arr.ID, &ir.Instruction{Op: ir.OpArrayLiteral, Args: elems, Type: arr.Type})
		list = splice(list, i, j+1, m.Replace(consumer, arr.ID, lit))
		changed = true
	}
	return list, changed
}

func constInt(m *ir.Method, id ir.ID) (int, bool) {
	in := m.At(id)
	if in.Op != ir.OpConst {
		return 0, false
	}
	v, ok := in.Value.(int32)
	if !ok || v < 0 {
		return 0, false
	}
	return int(v), true
}

// zero is the default element value for a field descriptor.
func zero(desc string) any {
	switch desc {
	case "Z", "B", "C", "S", "I":
		return int32(0)
	case "J":
		return int64(0)
	case "F":
		return float32(0)
	case "D":
		return float64(0)
	}
	return nil
}
