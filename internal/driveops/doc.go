// Package driveops turns configured drive identifiers into ready adapters
// and moves whole files between the local disk and a drive.
//
// Factory resolves a drive's configuration, authenticates it, locates a
// site-backed drive when needed and keeps one remotefs.Adapter per
// identifier for the life of the Factory. Drives sharing a credential set
// share one graph.Session, so one token serves all of them.
//
// TransferManager downloads through a .partial file with QuickXorHash
// verification and atomic rename, and uploads local files with a
// post-upload hash check.
package driveops
