// Package cids reassembles content identifiers that were split into two
// fixed-width fragments to fit the field size of chain event payloads.
package cids

import (
	gocid "github.com/ipfs/go-cid"
)

// PartSize is the maximum number of characters of a CID fragment that fits
// into a single chain field. A full CIDv0 string (46 chars) or CIDv1 string
// (59-62 chars) therefore spans at most two fragments.
const PartSize = 31

// Assemble reconstructs a full CID from its ordered fragments. An empty
// second fragment means the identifier fit into a single field. No format
// validation is performed; the chain is trusted to have split a valid CID
// at the fragment boundary.
func Assemble(part1, part2 string) string {
	if part2 == "" {
		return part1
	}
	return part1 + part2
}

// Split is the inverse of Assemble, used when submitting identifiers to the
// chain. The second return value is empty if the CID fits into one field.
func Split(cid string) (string, string) {
	if len(cid) <= PartSize {
		return cid, ""
	}
	return cid[:PartSize], cid[PartSize:]
}

// Valid reports whether s parses as a CID. Used for diagnostics only;
// reassembly never rejects malformed input.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	_, err := gocid.Decode(s)
	return err == nil
}
