// Package ingest moves new documents from the inbox into the reference tree.
//
// Each inbox file is extracted, normalized and hashed. Files whose content is
// already recorded, or whose canonical filename is taken by other content,
// stay in the inbox and are reported as conflicts. Everything else is moved
// under its canonical name and recorded. The store is written once at the end
// of the run; if that write fails the moves made by the run are undone.
package ingest
