// Package refstore owns references.json, the JSON record store that is the
// single source of truth for the library.
//
// The store is read fully, mutated in memory and written back in one atomic
// replace. Record order is insertion order and is preserved across load and
// save, so an unchanged store round-trips byte for byte. Compressed snapshots
// of the store file are managed by Backups; ImportLegacy converts the flat
// format written by earlier tooling.
package refstore
