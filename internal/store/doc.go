// Package store persists video records, their status lifecycle, and the
// renditions produced for them.
//
// Store is the contract shared by the SQLite backend in this package and the
// MongoDB backend in store/mongostore. UpdateStatus enforces the lifecycle
//
//	uploading -> processing -> processed | failed
//	uploading -> failed
//
// with a guarded update, so a terminal record can never move again. All
// failures are tagged services.ErrPersistence; missing rows additionally match
// ErrNotFound.
package store
