// Package sqpack reads and writes SqPack game archives.
//
// An archive is a file triplet: name.win32.index and name.win32.index2 hold
// two hash-sorted lookup tables over the same entries, and one or more
// name.win32.datN files hold the entries themselves as 128-byte aligned
// runs of deflate blocks.
//
// # Reading
//
// [OpenDir] opens an archive from disk; [Open] mounts index bytes and data
// sources from anywhere. A [Reader] resolves paths to packed entries
// ([Reader.EntryProvider]) or to decoded, randomly readable streams
// ([Reader.Open]):
//
//	r, err := sqpack.OpenDir("sqpack/ffxiv", "040000")
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	s, err := r.Open("chara/equipment/e0001/texture/v01_c0101e0001_top_d.tex")
//
// # Writing
//
// A [Creator] collects entry providers, packs them into size-bounded data
// files and writes the triplet with [Creator.Write], or mounts the result in
// memory with [Creator.AsViews]. Entries registered through
// [Creator.ReserveSpace] can be hot-swapped after the archive is laid out,
// as long as the new content fits the reservation.
package sqpack
