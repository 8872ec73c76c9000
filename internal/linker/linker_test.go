package linker

import (
	"testing"

	"unflutter/internal/dartfmt"
	"unflutter/internal/refs"
)

func TestLinkClassesSetsInstanceBackPointer(t *testing.T) {
	tbl := refs.NewTable()

	classCluster := &refs.Cluster{CID: 200, Name: "Class", Handler: "Class"}
	classObj := tbl.Alloc(classCluster)
	classObj.Payload["cid"] = refs.IntValue(200)

	instCluster := &refs.Cluster{CID: 200, Name: "Instance", Handler: "Instance"}
	inst := tbl.Alloc(instCluster)

	l := New(tbl)
	diags := &dartfmt.Diags{}
	l.LinkClasses(diags)

	if inst.Class != classObj {
		t.Errorf("Instance._class = %v, want %v", inst.Class, classObj)
	}
	if diags.Len() != 0 {
		t.Errorf("unexpected diagnostics: %v", diags.Items())
	}
}

func TestLinkClassesWarnsOnMissingClassEntry(t *testing.T) {
	tbl := refs.NewTable()
	instCluster := &refs.Cluster{CID: 999, Name: "Instance", Handler: "Instance"}
	tbl.Alloc(instCluster)

	l := New(tbl)
	diags := &dartfmt.Diags{}
	l.LinkClasses(diags)

	if diags.Len() == 0 {
		t.Error("expected a diagnostic for the unresolved cid")
	}
}

func TestBuildIndicesGroupsByCIDAndHandler(t *testing.T) {
	tbl := refs.NewTable()
	tbl.Alloc(&refs.Cluster{CID: 61, Name: "Mint", Handler: "Mint"})
	tbl.Alloc(&refs.Cluster{CID: 61, Name: "Mint", Handler: "Mint"})
	tbl.Alloc(&refs.Cluster{CID: 90, Name: "Array", Handler: "Array"})

	l := New(tbl)
	l.BuildIndices()

	if got := len(l.RefsByCID("Mint")); got != 2 {
		t.Errorf("RefsByCID(Mint) = %d objects, want 2", got)
	}
	if got := len(l.RefsByHandler("Array")); got != 1 {
		t.Errorf("RefsByHandler(Array) = %d objects, want 1", got)
	}
	if got := len(l.RefsByCID("NoSuchCluster")); got != 0 {
		t.Errorf("RefsByCID for an absent name should return empty, got %d", got)
	}
}

func TestSearchAddressFindsContainingRange(t *testing.T) {
	tbl := refs.NewTable()
	codeA := tbl.Alloc(&refs.Cluster{Name: "Code", Handler: "Code"})
	codeB := tbl.Alloc(&refs.Cluster{Name: "Code", Handler: "Code"})

	l := New(tbl)
	l.RegisterCodeRange(codeB, 0x2000, 0x100)
	l.RegisterCodeRange(codeA, 0x1000, 0x100)
	l.Finalize()

	obj, inFuncOffset, ok := l.SearchAddress(0x1050)
	if !ok || obj != codeA || inFuncOffset != 0x50 {
		t.Errorf("SearchAddress(0x1050) = (%v, %d, %v), want (codeA, 0x50, true)", obj, inFuncOffset, ok)
	}

	obj, _, ok = l.SearchAddress(0x2080)
	if !ok || obj != codeB {
		t.Errorf("SearchAddress(0x2080) should resolve to codeB, got (%v, %v)", obj, ok)
	}

	if _, _, ok := l.SearchAddress(0x1200); ok {
		t.Error("SearchAddress between ranges should not resolve")
	}
	if _, _, ok := l.SearchAddress(0x500); ok {
		t.Error("SearchAddress before the first range should not resolve")
	}
}

func TestEntryPointsMonomorphicOnly(t *testing.T) {
	pts := EntryPoints(0x1000, 8, 0, 0, true)
	if len(pts) != 1 {
		t.Fatalf("single-entry code should produce 1 entry point, got %d: %v", len(pts), pts)
	}
	kind, ok := pts[0x1008]
	if !ok || kind.Polymorphic || !kind.Checked {
		t.Errorf("pts[0x1008] = %+v, want {Polymorphic:false Checked:true}", kind)
	}
}

func TestEntryPointsPolymorphicWithUnchecked(t *testing.T) {
	pts := EntryPoints(0x1000, 8, 28, 4, false)
	if len(pts) != 4 {
		t.Fatalf("poly+unchecked code should produce 4 entry points, got %d: %v", len(pts), pts)
	}
	for _, addr := range []uint64{0x1008, 0x101c, 0x100c, 0x1020} {
		if _, ok := pts[addr]; !ok {
			t.Errorf("expected an entry point at 0x%x, got %v", addr, pts)
		}
	}
}
