package util

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

// Md5ThenHex is a quick hasher
func Md5ThenHex(value []byte) string {
	hasher := md5.New()
	hasher.Write(value)
	return hex.EncodeToString(hasher.Sum(nil))
}

// HashUUID returns a name-style UUID from the md5 of value's JSON form, or
// "" when value does not marshal.
func HashUUID(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return digestUUID(raw)
}

// SamplesUUID returns a UUID from the md5 of samples in little-endian int32
// order, so equal planes share an identifier regardless of how they were coded.
func SamplesUUID(samples []int32) string {
	raw := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint32(raw[4*i:], uint32(v))
	}
	return digestUUID(raw)
}

func digestUUID(raw []byte) string {
	hash := md5.Sum(raw)
	id, err := uuid.FromBytes(hash[:])
	if err != nil {
		return ""
	}
	return id.String()
}
