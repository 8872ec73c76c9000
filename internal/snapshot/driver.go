package snapshot

import (
	"fmt"

	"unflutter/internal/cluster"
	"unflutter/internal/dartfmt"
	"unflutter/internal/linker"
	"unflutter/internal/refs"
	"unflutter/internal/rodata"
	"unflutter/internal/statictables"
)

// kMaxPreferredCodeAlignment is the alignment boundary at which the rodata
// section starts after the clustered body, for snapshots that include code
// (§4.4, §6).
const kMaxPreferredCodeAlignment = 32

// kSectionMarker is the 32-bit sentinel written between clusters in debug
// builds (§4.5 step 5, §4.5 step 10).
const kSectionMarker = 0xABAB

// Result is everything Parse produces (§6's Outputs): the populated
// reference table, the clusters read from this blob (base objects kept
// separate since they may have come from a prior VM-snapshot Parse), the
// synthesized/filled root, the linker built over the completed table, the
// rodata region (if any), and every diagnostic recorded along the way.
type Result struct {
	ParseID string
	Header  *Header
	Flags   cluster.Flags
	Arch    string

	Table       *refs.Table
	BaseCluster *refs.Cluster
	Clusters    []*refs.Cluster
	Root        *refs.Object

	Linker *linker.Linker
	RO     *rodata.Region

	Diags *dartfmt.Diags
}

func roundUp(x, n int64) int64 {
	return ((x + n - 1) / n) * n
}

// Parse implements §4.5's thirteen-step driver: parse the header, derive
// settings, adopt or synthesize base objects, run the alloc pass over every
// cluster, run the fill pass, build the root, link classes, and (if
// requested) build the lookup indices. data is the snapshot's data blob;
// instructions is the separate instructions blob (nil for snapshots that
// don't include code).
func Parse(data, instructions []byte, opts Options) (*Result, error) {
	diags := &dartfmt.Diags{}
	res := &Result{ParseID: newParseID(), Diags: diags}

	s := dartfmt.NewStream(data)
	hdr, err := ParseHeader(s, opts.ExpectedVersion)
	if err != nil {
		return nil, fmt.Errorf("snapshot: header: %w", err)
	}
	res.Header = hdr

	totalSize := hdr.TotalSize()
	if int64(len(data)) < totalSize {
		diags.Addf(uint64(len(data)), dartfmt.DiagTruncated,
			"data blob is %d bytes, header declares %d", len(data), totalSize)
		if opts.Strict {
			return nil, fmt.Errorf("%w: data blob shorter than header-declared size", dartfmt.ErrStreamEOF)
		}
	} else if int64(len(data)) > totalSize && !hdr.IncludesCode {
		diags.Addf(uint64(totalSize), dartfmt.DiagInvalid,
			"%d excess bytes at the end of the data blob", int64(len(data))-totalSize)
	}

	features := ParseFeatures(hdr.Features)
	arch, archErr := features.Arch()
	if archErr != nil {
		if opts.Strict {
			return nil, fmt.Errorf("snapshot: %w", archErr)
		}
		diags.Addf(uint64(s.Position()), dartfmt.DiagInvalid, "%v", archErr)
	}
	res.Arch = arch

	is64 := arch == "x64" || arch == "arm64"
	isProduct := features.Has("product")
	isDebug := features.Has("debug")

	flags := cluster.DeriveFlags(hdr.Kind, is64, isProduct, isDebug, true)
	flags.Strict = opts.Strict
	res.Flags = flags

	body := data
	if int64(len(body)) > totalSize {
		body = body[:totalSize]
	}
	s = dartfmt.NewStreamAt(body, s.Position())

	if flags.IncludesCode {
		roStart := roundUp(totalSize, kMaxPreferredCodeAlignment)
		if roStart > int64(len(data)) {
			diags.Addf(uint64(roStart), dartfmt.DiagTruncated,
				"rodata section missing (need offset %d, blob has %d bytes)", roStart, len(data))
		} else {
			res.RO = &rodata.Region{Data: data[roStart:]}
		}
	}

	t := refs.NewTable()
	res.Table = t

	if opts.Base != nil {
		if err := t.AdoptBase(opts.Base.Table, int(hdr.NumBaseObjects)); err != nil {
			if opts.Strict {
				return nil, fmt.Errorf("snapshot: base objects: %w", err)
			}
			diags.Addf(0, dartfmt.DiagInvalid, "%v; synthesizing base objects instead", err)
			res.BaseCluster = statictables.SynthesizeBaseObjects(t, hdr.NumBaseObjects, flags.IncludesCode)
		} else if int64(opts.Base.Table.Len()) != hdr.NumBaseObjects {
			diags.Addf(0, dartfmt.DiagInvalid,
				"snapshot expects %d base objects, base snapshot has %d", hdr.NumBaseObjects, opts.Base.Table.Len())
		}
	} else {
		res.BaseCluster = statictables.SynthesizeBaseObjects(t, hdr.NumBaseObjects, flags.IncludesCode)
	}

	lk := linker.New(t)
	res.Linker = lk

	clusters := make([]*refs.Cluster, 0, hdr.NumClusters)
	for i := int64(0); i < hdr.NumClusters; i++ {
		cidRaw, err := s.ReadCID()
		if err != nil {
			return nil, fmt.Errorf("snapshot: cluster %d: %w", i, err)
		}
		cid := int64(cidRaw)
		handlerName := cluster.ClassifyHandler(cid)
		h, ok := cluster.Registry[handlerName]
		if !ok || h.Alloc == nil {
			return nil, fmt.Errorf("snapshot: cluster %d (cid %d): %w", i, cid, dartfmt.ErrUnimplementedHandler)
		}

		name := cluster.CIDName(cid)
		if name == "" {
			name = handlerName
		}
		c := &refs.Cluster{CID: cid, Name: name, Handler: handlerName}
		if err := h.Alloc(s, c, t, flags); err != nil {
			return nil, fmt.Errorf("snapshot: cluster %d (cid %d, %s) alloc: %w", i, cid, handlerName, err)
		}
		clusters = append(clusters, c)

		if flags.IsDebug {
			expected, err := s.ReadUint(32)
			if err != nil {
				return nil, fmt.Errorf("snapshot: cluster %d: next-ref check: %w", i, err)
			}
			if int64(expected) != int64(t.Len()+1) {
				msg := fmt.Sprintf("next ref index mismatch after cluster %d: stream says %d, table has %d", i, expected, t.Len()+1)
				if opts.Strict {
					return nil, dartfmt.NewInconsistency(uint64(s.Position()), msg)
				}
				diags.Addf(uint64(s.Position()), dartfmt.DiagInvalid, msg)
			}
		}
	}
	res.Clusters = clusters

	if int64(t.Len()) != hdr.NumBaseObjects+hdr.NumObjects {
		msg := fmt.Sprintf("expected %d total objects, produced %d", hdr.NumBaseObjects+hdr.NumObjects, t.Len())
		if opts.Strict {
			return nil, dartfmt.NewInconsistency(uint64(s.Position()), msg)
		}
		diags.Addf(uint64(s.Position()), dartfmt.DiagInvalid, msg)
	}

	for ci, c := range clusters {
		h := cluster.Registry[c.Handler]
		for _, obj := range c.Refs {
			if h.DoReadFrom {
				if c.Handler == "Closure" || c.Handler == "GrowableObjectArray" {
					canonical, err := s.ReadBool()
					if err != nil {
						return nil, fmt.Errorf("snapshot: cluster %d ref %d: canonical bit: %w", ci, obj.ID, err)
					}
					obj.Payload["canonical"] = refs.BoolValue(canonical)
				}
				if c.Handler == "Code" {
					desc, err := rodata.ReadInstructions(s, instructions, flags.Is64, opts.InstructionsOffset, diags)
					if err != nil {
						return nil, fmt.Errorf("snapshot: cluster %d ref %d: instructions: %w", ci, obj.ID, err)
					}
					storeInstructionsDescriptor(obj, "instructions", desc, opts, lk)
					if !flags.IsPrecompiled && flags.Kind == cluster.KindFullJIT {
						desc2, err := rodata.ReadInstructions(s, instructions, flags.Is64, opts.InstructionsOffset, diags)
						if err != nil {
							return nil, fmt.Errorf("snapshot: cluster %d ref %d: active_instructions: %w", ci, obj.ID, err)
						}
						storeInstructionsDescriptor(obj, "active_instructions", desc2, opts, lk)
					}
				}
				for _, field := range cluster.TypeTableFields(c.Handler, flags) {
					if err := t.StoreRef(s, flags.UnsignedRefEncoding, obj, field, diags, flags.Strict); err != nil {
						return nil, fmt.Errorf("snapshot: cluster %d ref %d field %s: %w", ci, obj.ID, field, err)
					}
				}
			}
			if err := h.Fill(s, obj, t, flags, diags); err != nil {
				return nil, fmt.Errorf("snapshot: cluster %d (cid %d, %s) fill ref %d: %w", ci, c.CID, c.Handler, obj.ID, err)
			}
		}
		if err := enforceSectionMarker(s, flags.IsDebug, diags, opts.Strict); err != nil {
			return nil, err
		}
	}

	root := t.Alloc(&refs.Cluster{CID: refs.CIDPseudo, Name: "ObjectStore", Handler: "ObjectStore"})
	res.Root = root

	if opts.VM {
		if err := t.StoreRef(s, flags.UnsignedRefEncoding, root, "symbol_table", diags, flags.Strict); err != nil {
			return nil, fmt.Errorf("snapshot: root: symbol_table: %w", err)
		}
		if flags.IncludesCode {
			for _, name := range statictables.StubCodeNames {
				if err := t.StoreRef(s, flags.UnsignedRefEncoding, root, "stub_"+name, diags, flags.Strict); err != nil {
					return nil, fmt.Errorf("snapshot: root: stub %s: %w", name, err)
				}
			}
		}
	} else {
		for _, field := range cluster.TypeTableFields("ObjectStore", flags) {
			if err := t.StoreRef(s, flags.UnsignedRefEncoding, root, field, diags, flags.Strict); err != nil {
				return nil, fmt.Errorf("snapshot: root: field %s: %w", field, err)
			}
		}
	}
	if err := enforceSectionMarker(s, flags.IsDebug, diags, opts.Strict); err != nil {
		return nil, err
	}

	if int64(s.Position()) != totalSize {
		diags.Addf(uint64(s.Position()), dartfmt.DiagInvalid,
			"snapshot should end at offset %d but parser stopped at %d", totalSize, s.Position())
	}

	lk.LinkClasses(diags)
	if opts.BuildTables {
		lk.BuildIndices()
		lk.Finalize()
	}

	return res, nil
}

// storeInstructionsDescriptor records a Code object's instructions/
// active_instructions descriptor into its payload and, for the primary
// instructions field, registers its address range with the linker for
// SearchAddress (§4.6 step 13).
func storeInstructionsDescriptor(obj *refs.Object, field string, desc *rodata.InstructionsDescriptor, opts Options, lk *linker.Linker) {
	if desc == nil {
		return
	}
	if desc.IsBaseRelative {
		obj.Payload[field+"_base_relative_offset"] = refs.IntValue(int64(desc.Offset))
		return
	}
	obj.Payload[field+"_offset"] = refs.IntValue(int64(desc.Offset))
	obj.Payload[field+"_data_addr"] = refs.IntValue(int64(desc.DataAddr))
	obj.Payload[field+"_size"] = refs.IntValue(int64(desc.Size))
	obj.Payload[field+"_single_entry"] = refs.BoolValue(desc.SingleEntry)
	obj.Payload[field+"_unchecked_entrypoint_offset"] = refs.IntValue(int64(desc.UncheckedEntrypointOff))
	if opts.ParseRODataContents {
		obj.Payload[field+"_code"] = refs.BytesValue(desc.Code)
	}
	if field == "instructions" && desc.Size > 0 {
		lk.RegisterCodeRange(obj, desc.DataAddr, desc.Size)
	}
}

// enforceSectionMarker implements §4.5's debug-mode section marker check:
// a no-op outside debug builds, otherwise a 32-bit 0xABAB sentinel that's
// fatal in strict mode and a diagnostic otherwise.
func enforceSectionMarker(s *dartfmt.Stream, isDebug bool, diags *dartfmt.Diags, strict bool) error {
	if !isDebug {
		return nil
	}
	offset := s.Position()
	marker, err := s.ReadUint(32)
	if err != nil {
		return fmt.Errorf("snapshot: section marker: %w", err)
	}
	if marker != kSectionMarker {
		msg := fmt.Sprintf("bad section marker 0x%x at offset 0x%x", marker, offset)
		if strict {
			return dartfmt.NewInconsistency(uint64(offset), msg)
		}
		diags.Addf(uint64(offset), dartfmt.DiagInvalid, msg)
	}
	return nil
}
