package refs

import (
	"testing"

	"unflutter/internal/dartfmt"
)

func TestTableAllocIsOneBased(t *testing.T) {
	tbl := NewTable()
	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 on a fresh table", tbl.Len())
	}
	c := &Cluster{CID: 1, Name: "Mint"}
	obj := tbl.Alloc(c)
	if obj.ID != 1 {
		t.Errorf("first Alloc id = %d, want 1", obj.ID)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() after one Alloc = %d, want 1", tbl.Len())
	}
	if len(c.Refs) != 1 || c.Refs[0] != obj {
		t.Errorf("cluster.Refs not updated by Alloc")
	}
}

func TestTableGetRejectsOutOfRange(t *testing.T) {
	tbl := NewTable()
	tbl.Alloc(&Cluster{})
	if _, err := tbl.Get(Illegal); err == nil {
		t.Error("Get(Illegal) should fail")
	}
	if _, err := tbl.Get(2); err == nil {
		t.Error("Get(2) should fail: only one object allocated")
	}
	if obj, err := tbl.Get(1); err != nil || obj.ID != 1 {
		t.Errorf("Get(1) = %v, %v; want the allocated object", obj, err)
	}
}

func TestReadRefBestEffortBrokenRef(t *testing.T) {
	tbl := NewTable()
	tbl.Alloc(&Cluster{})

	// A ref id one past the end of the table, encoded as an unsigned
	// varint: 2 terminated by the high bit (128+2).
	s := dartfmt.NewStream([]byte{130})
	diags := &dartfmt.Diags{}
	obj, err := tbl.ReadRef(s, true, Source{Field: "next"}, diags, false)
	if err != nil {
		t.Fatalf("ReadRef in best-effort mode should not error: %v", err)
	}
	if !obj.Broken {
		t.Error("out-of-range ref should yield a broken sentinel in best-effort mode")
	}
	if diags.Len() == 0 {
		t.Error("expected a diagnostic for the broken ref")
	}
}

func TestReadRefStrictModeFails(t *testing.T) {
	tbl := NewTable()
	tbl.Alloc(&Cluster{})

	s := dartfmt.NewStream([]byte{130})
	diags := &dartfmt.Diags{}
	if _, err := tbl.ReadRef(s, true, Source{Field: "next"}, diags, true); err == nil {
		t.Error("ReadRef in strict mode should fail on an out-of-range ref")
	}
}

func TestAdoptBaseRequiresFreshTable(t *testing.T) {
	base := NewTable()
	base.Alloc(&Cluster{Name: "base0"})

	tbl := NewTable()
	tbl.Alloc(&Cluster{Name: "already started"})
	if err := tbl.AdoptBase(base, 1); err == nil {
		t.Error("AdoptBase after Alloc should fail")
	}

	fresh := NewTable()
	if err := fresh.AdoptBase(base, 1); err != nil {
		t.Fatalf("AdoptBase on a fresh table failed: %v", err)
	}
	if fresh.Len() != 1 {
		t.Errorf("Len() after adopting 1 base object = %d, want 1", fresh.Len())
	}
}

func TestAdoptBaseRejectsTooFewObjects(t *testing.T) {
	base := NewTable()
	base.Alloc(&Cluster{Name: "base0"})

	fresh := NewTable()
	if err := fresh.AdoptBase(base, 5); err == nil {
		t.Error("AdoptBase should fail when base has fewer objects than requested")
	}
}

func TestStoreRefWritesPayload(t *testing.T) {
	tbl := NewTable()
	target := tbl.Alloc(&Cluster{Name: "target"})
	parent := tbl.Alloc(&Cluster{Name: "parent"})

	// target has id 1; unsigned varint encoding of 1 is a single
	// terminal byte 128+1.
	s := dartfmt.NewStream([]byte{129})
	diags := &dartfmt.Diags{}
	if err := tbl.StoreRef(s, true, parent, "field", diags, false); err != nil {
		t.Fatalf("StoreRef: %v", err)
	}
	v, ok := parent.Payload["field"]
	if !ok || !v.IsRef || v.Ref != target.ID {
		t.Errorf("parent.Payload[field] = %+v, want a ref to %d", v, target.ID)
	}
}
