package minidump

// VMMemoryStack is the VM_MEMORY_STACK user tag spec.md §4.4 names.
const VMMemoryStack = 30

// RegionPolicy decides whether a region's bytes are copied into the
// dump ("mapped") or referenced only by metadata ("unmapped"), per
// spec.md §4.4: include iff bigMode, or the region is tagged as a
// thread stack, or any sampled thread's RBP/RSP falls inside it.
//
// Grounded on original_source/writer/Minidump.cpp's ForEachMemoryRegion
// callback (the `bMapped` boolean), generalized into a standalone,
// independently testable function rather than an inline lambda.
type RegionPolicy struct {
	BigMode bool
	Threads []ThreadCapture
}

// Include reports whether r's body should be copied.
func (p RegionPolicy) Include(r Region) bool {
	if p.BigMode || r.UserTag == VMMemoryStack {
		return true
	}
	lo, hi := r.Base, r.Base+r.Size
	for _, t := range p.Threads {
		if contains(lo, hi, t.RBP()) || contains(lo, hi, t.RSP()) {
			return true
		}
	}
	return false
}

func contains(lo, hi, v uint64) bool {
	return v >= lo && v < hi
}

// Classify applies Include to every region in order, returning them
// annotated with BodyIncluded set (spec.md §3's Region invariant).
func (p RegionPolicy) Classify(regions []Region) []Region {
	out := make([]Region, len(regions))
	for i, r := range regions {
		r.BodyIncluded = p.Include(r)
		out[i] = r
	}
	return out
}
