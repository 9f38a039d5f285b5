// Package hash computes the canonical block digest used throughout the
// chain and consensus packages.
package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
)

// separator delimits adjacent variable-length fields in the canonical
// encoding so that e.g. data="ab" previous_hash="c" cannot collide with
// data="a" previous_hash="bc".
const separator = '|'

// Block returns the hex-lowercase SHA-256 digest of the canonical encoding
// of a block's hashed fields: big-endian index, separator, big-endian
// timestamp, separator, data bytes, separator, previous_hash bytes,
// separator, deterministic JSON encoding of proof.
//
// proof may be any JSON-marshalable value; encoding/json sorts map keys and
// preserves struct field order, so the encoding is deterministic for the
// proof types this node uses (uint64 nonces, small structs).
func Block(index uint64, timestamp int64, data, previousHash string, proof any) (string, error) {
	proofBytes, err := json.Marshal(proof)
	if err != nil {
		return "", err
	}

	h := sha256.New()

	var indexBuf [8]byte
	binary.BigEndian.PutUint64(indexBuf[:], index)
	h.Write(indexBuf[:])
	h.Write([]byte{separator})

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestamp))
	h.Write(tsBuf[:])
	h.Write([]byte{separator})

	h.Write([]byte(data))
	h.Write([]byte{separator})

	h.Write([]byte(previousHash))
	h.Write([]byte{separator})

	h.Write(proofBytes)

	return hex.EncodeToString(h.Sum(nil)), nil
}
