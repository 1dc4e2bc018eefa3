package minidump

import "testing"

func TestRegionPolicyStackAndBigMode(t *testing.T) {
	r := Region{Base: 0x1000, Size: 0x1000, UserTag: VMMemoryStack}
	p := RegionPolicy{}
	if !p.Include(r) {
		t.Error("stack-tagged region should always be included")
	}

	other := Region{Base: 0x2000, Size: 0x1000, UserTag: 0}
	if p.Include(other) {
		t.Error("non-stack region with no containing thread should not be included by default")
	}

	big := RegionPolicy{BigMode: true}
	if !big.Include(other) {
		t.Error("bigMode should include every region")
	}
}

func TestRegionPolicyRBPRSPContainment(t *testing.T) {
	var t1 ThreadCapture
	putGPRForTest(&t1.GPR, 6, 0x5000) // rbp
	putGPRForTest(&t1.GPR, 7, 0x9000) // rsp, outside the region below

	p := RegionPolicy{Threads: []ThreadCapture{t1}}

	inRBP := Region{Base: 0x4000, Size: 0x2000}
	if !p.Include(inRBP) {
		t.Error("region containing a thread's rbp must be included regardless of bigMode")
	}

	outside := Region{Base: 0x6000, Size: 0x1000}
	if p.Include(outside) {
		t.Error("region containing neither rbp nor rsp should not be included")
	}
}

func TestRegionPolicyClassifyPreservesOrder(t *testing.T) {
	regions := []Region{
		{Base: 0x1000, Size: 0x1000, UserTag: VMMemoryStack},
		{Base: 0x2000, Size: 0x1000},
	}
	classified := RegionPolicy{}.Classify(regions)
	if len(classified) != 2 {
		t.Fatalf("Classify() returned %d regions, want 2", len(classified))
	}
	if !classified[0].BodyIncluded {
		t.Error("first (stack) region should be marked included")
	}
	if classified[1].BodyIncluded {
		t.Error("second region should be marked unincluded")
	}
}

// putGPRForTest writes word index (0-based, same layout as gprWord) into
// gpr for use by tests that need to control RBP/RSP without depending on
// the machtask package.
func putGPRForTest(gpr *[168]byte, index int, v uint64) {
	off := index * 8
	for i := 0; i < 8; i++ {
		gpr[off+i] = byte(v >> (8 * i))
	}
}
