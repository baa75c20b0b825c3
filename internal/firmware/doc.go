// Package firmware loads firmware blobs for drivers during bind.
//
// The device manager does not interpret firmware contents. A Loader returns
// the bytes together with a resource handle that the caller owns and must
// close. A missing blob is reported with status.ErrNotFound.
package firmware
