package graphexport

import (
	"testing"

	"unflutter/internal/cluster"
	"unflutter/internal/linker"
	"unflutter/internal/refs"
)

func TestBuildEmitsNodesAndEdgesForIncludedKinds(t *testing.T) {
	tbl := refs.NewTable()

	classCluster := &refs.Cluster{CID: cluster.CIDClass, Name: "Class", Handler: "Class"}
	classObj := tbl.Alloc(classCluster)

	libCluster := &refs.Cluster{CID: cluster.CIDLibrary, Name: "Library", Handler: "Library"}
	libObj := tbl.Alloc(libCluster)
	classObj.Payload["library"] = refs.RefValue(libObj.ID)

	l := linker.New(tbl)
	l.BuildIndices()

	g := Build(l, []string{"Class", "Library"})

	if len(g.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2: %v", len(g.Nodes), g.Nodes)
	}
	wantClass := "Class#1"
	wantLib := "Library#2"
	found := map[string]bool{}
	for _, n := range g.Nodes {
		found[n] = true
	}
	if !found[wantClass] || !found[wantLib] {
		t.Errorf("Nodes = %v, want %s and %s", g.Nodes, wantClass, wantLib)
	}

	if len(g.Edges) != 1 {
		t.Fatalf("got %d edges, want 1: %v", len(g.Edges), g.Edges)
	}
	if g.Edges[0].Caller != wantClass || g.Edges[0].Callee != wantLib {
		t.Errorf("Edge = %+v, want Caller=%s Callee=%s", g.Edges[0], wantClass, wantLib)
	}
}

func TestBuildExcludesEdgesToUnincludedKinds(t *testing.T) {
	tbl := refs.NewTable()
	classCluster := &refs.Cluster{CID: cluster.CIDClass, Name: "Class", Handler: "Class"}
	classObj := tbl.Alloc(classCluster)

	mintCluster := &refs.Cluster{CID: cluster.CIDMint, Name: "Mint", Handler: "Mint"}
	mintObj := tbl.Alloc(mintCluster)
	classObj.Payload["const"] = refs.RefValue(mintObj.ID)

	l := linker.New(tbl)
	l.BuildIndices()

	g := Build(l, []string{"Class"})
	if len(g.Nodes) != 1 {
		t.Fatalf("got %d nodes, want 1 (Mint excluded)", len(g.Nodes))
	}
	if len(g.Edges) != 0 {
		t.Errorf("got %d edges, want 0 since the target kind isn't included", len(g.Edges))
	}
}

func TestBuildDefaultsToPackageKinds(t *testing.T) {
	tbl := refs.NewTable()
	tbl.Alloc(&refs.Cluster{CID: cluster.CIDClass, Name: "Class", Handler: "Class"})
	l := linker.New(tbl)
	l.BuildIndices()

	g := Build(l, nil)
	if len(g.Nodes) != 1 {
		t.Errorf("nil kinds should default to package Kinds, got %d nodes", len(g.Nodes))
	}
}
