package document

// Merge combines two documents without modifying either of them.
//
// For every key of overlay: a key missing from base is copied; two mappings
// are merged key by key; two sequences are concatenated, base first; any
// other pair is resolved in favour of overlay. Nested mappings are visited
// from an explicit stack, so document depth never grows the call stack.
func Merge(base, overlay Value) Value {
	if base.kind != KindMapping || overlay.kind != KindMapping {
		return overlay.Clone()
	}

	dst := base.Clone()

	type frame struct {
		dst map[string]Value
		src map[string]Value
	}
	stack := []frame{{dst: dst.fields, src: overlay.fields}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for key, src := range f.src {
			cur, exists := f.dst[key]
			if !exists {
				f.dst[key] = src.Clone()
				continue
			}

			switch {
			case cur.kind == KindMapping && src.kind == KindMapping:
				// cur belongs to the clone of base, so it may be filled in place.
				stack = append(stack, frame{dst: cur.fields, src: src.fields})
			case cur.kind == KindSequence && src.kind == KindSequence:
				items := make([]Value, 0, len(cur.items)+len(src.items))
				items = append(items, cur.items...)
				for _, item := range src.items {
					items = append(items, item.Clone())
				}
				f.dst[key] = Value{kind: KindSequence, items: items}
			default:
				f.dst[key] = src.Clone()
			}
		}
	}

	return dst
}
