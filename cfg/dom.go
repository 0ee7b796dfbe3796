package cfg

import "github.com/RoaringBitmap/roaring/v2"

// Dominators maps each block ID to the IDs of the blocks dominating it.
// Exception edges count as control flow. Blocks unreachable from the entry
// are dominated by every block.
type Dominators map[int]*roaring.Bitmap

// Dominates reports whether a dominates b.
func (d Dominators) Dominates(a, b *Block) bool {
	set, ok := d[b.ID]
	return ok && set.Contains(uint32(a.ID))
}

func (g *Graph) Dominators() Dominators {
	all := roaring.New()
	for _, b := range g.Blocks {
		all.Add(uint32(b.ID))
	}
	preds := make(map[*Block][]*Block)
	for _, b := range g.Blocks {
		for _, e := range b.Succs {
			if e.To != nil {
				preds[e.To] = append(preds[e.To], b)
			}
		}
		for _, h := range b.Exc {
			preds[h.To] = append(preds[h.To], b)
		}
	}

	dom := make(Dominators, len(g.Blocks))
	for _, b := range g.Blocks {
		if b == g.Entry {
			dom[b.ID] = roaring.BitmapOf(uint32(b.ID))
		} else {
			dom[b.ID] = all.Clone()
		}
	}
	for changed := true; changed; {
		changed = false
		for _, b := range g.Blocks {
			if b == g.Entry {
				continue
			}
			var meet *roaring.Bitmap
			for _, p := range preds[b] {
				pd, ok := dom[p.ID]
				if !ok {
					continue
				}
				if meet == nil {
					meet = pd.Clone()
				} else {
					meet.And(pd)
				}
			}
			if meet == nil {
				continue
			}
			meet.Add(uint32(b.ID))
			if !meet.Equals(dom[b.ID]) {
				dom[b.ID] = meet
				changed = true
			}
		}
	}
	return dom
}
