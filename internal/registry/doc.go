// Package registry implements device ownership and sharing.
//
// Each device has one global record and any number of per-account
// links. The claiming account becomes the single administrator and
// receives a share code; other accounts redeem that code for viewer
// links. Display names live on the links, so every observer can name a
// device independently.
//
// All state lives in the document store. The claim operation is the
// only multi-document mutation and is applied as one atomic batch; an
// administrator's removal cascades to an unclaim plus a batched,
// non-transactional wipe of the device's reading history.
//
// Every operation fails closed: an empty account is rejected before any
// store access.
package registry
