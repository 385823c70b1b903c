// Package vectorindex implements the per-(collection, column) approximate
// nearest-neighbor index: a parallel batch insert path over a dense
// key-linked vector store, atomic persistence, and k-NN search.
//
// An Index is parameterized by {dimensions, metric, element kind} via
// Options; the element kind is recorded in index.bin (see Save), but
// vectors are always held as float32, in memory and on disk, so distance
// computation and insertion never need to branch on storage width.
package vectorindex
