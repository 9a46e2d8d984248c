// Package preflight provides readiness checks for the filesystem paths and
// external binaries vodpipe depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and the ingest writer consults
//     FreeBytes before accepting an upload.
//   - The health endpoint and "vodpipe status" display the same results.
package preflight
