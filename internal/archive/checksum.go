package archive

import (
	"crypto/sha256"

	"github.com/lamina-ml/lamina/internal/graph"
)

// ComputeChecksum hashes the tensor data section.
func ComputeChecksum(data []byte) [ChecksumSize]byte {
	return sha256.Sum256(data)
}

// ValidateChecksum compares a computed checksum against the stored one.
func ValidateChecksum(computed, stored [ChecksumSize]byte) error {
	if computed != stored {
		return graph.Errorf(graph.KindValidation, "archive.ValidateChecksum",
			"checksum mismatch: file is corrupted or was modified")
	}
	return nil
}
