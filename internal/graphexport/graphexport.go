// Package graphexport renders the linked object graph (classes, libraries,
// scripts, and the reference edges between them) as a github.com/zboralski/
// lattice.Graph. It is a satellite of the deserializer: it walks the graph
// a completed linker.Linker exposes, never the snapshot stream itself, and
// has no effect on parsing (spec §1 excludes rendering from the CORE).
package graphexport

import (
	"fmt"

	"github.com/zboralski/lattice"

	"unflutter/internal/cluster"
	"unflutter/internal/linker"
	"unflutter/internal/refs"
)

// nodeLabel derives a stable node identifier for an object: its cid name
// (or cluster name for pseudo-clusters) plus its ref id, so distinct
// instances of the same class remain distinct nodes.
func nodeLabel(obj *refs.Object) string {
	name := obj.Cluster.Name
	if obj.Cluster.CID != refs.CIDPseudo {
		if n := cluster.CIDName(obj.Cluster.CID); n != "" {
			name = n
		}
	}
	return fmt.Sprintf("%s#%d", name, obj.ID)
}

// Kinds selects which cid names' clusters are walked as graph nodes.
// Edges are only emitted between two included nodes.
var Kinds = []string{"Class", "Library", "Script"}

// Build walks l's linked clusters for each name in kinds and renders a
// lattice.Graph: one node per object, one edge per reference field that
// points from one included object to another. This graphs the parsed object
// graph's own reference fields, so no disassembly is required.
func Build(l *linker.Linker, kinds []string) *lattice.Graph {
	if kinds == nil {
		kinds = Kinds
	}

	included := map[refs.ID]*refs.Object{}
	for _, name := range kinds {
		for _, obj := range l.RefsByCID(name) {
			included[obj.ID] = obj
		}
	}

	g := &lattice.Graph{}
	for _, obj := range included {
		g.Nodes = append(g.Nodes, nodeLabel(obj))
	}
	for _, obj := range included {
		from := nodeLabel(obj)
		for _, v := range obj.Payload {
			if !v.IsRef {
				continue
			}
			target, ok := included[v.Ref]
			if !ok || target == obj {
				continue
			}
			g.Edges = append(g.Edges, lattice.Edge{
				Caller: from,
				Callee: nodeLabel(target),
			})
		}
	}
	g.Dedup()
	return g
}
