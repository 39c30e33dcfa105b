package archive

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/lamina-ml/lamina/internal/tensor"
)

// BinaryCodec is the built-in .lamina codec. Files are written in format
// v2: fixed header with checksum, JSON header, aligned tensor data.
type BinaryCodec struct{}

// tensorOrder returns the canonical on-disk tensor order: model weights in
// layer order, then optimizer state, then anything else sorted by name.
func tensorOrder(a *Archive) []string {
	var order []string
	seen := make(map[string]bool, len(a.Tensors))
	push := func(name string) {
		if _, ok := a.Tensors[name]; ok && !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	for _, lw := range a.Header.ModelWeights {
		for _, name := range lw.WeightNames {
			push(name)
		}
	}
	for _, name := range a.Header.OptimizerWeights {
		push(name)
	}
	var rest []string
	for name := range a.Tensors {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)
	return order
}

// Write serializes the archive to path.
func (BinaryCodec) Write(path string, a *Archive) (err error) {
	header := a.Header
	header.FormatVersion = FormatVersionV2
	header.LaminaVersion = laminaVersion
	if header.FileID == "" {
		header.FileID = uuid.NewString()
	}

	order := tensorOrder(a)
	header.Tensors = make([]TensorMeta, 0, len(order))
	var offset int64
	for _, name := range order {
		t := a.Tensors[name]
		size := int64(t.ByteSize())
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  t.DType().String(),
			Shape:  []int(t.Shape()),
			Offset: offset,
			Size:   size,
		})
		offset += size
	}
	dataSize := offset

	var flags uint32
	if header.ModelConfig != nil {
		flags |= FlagHasTopology
	}
	if header.TrainingConfig != nil {
		flags |= FlagHasTraining
	}
	if len(header.OptimizerWeights) > 0 {
		flags |= FlagHasOptimizer
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	data := make([]byte, 0, dataSize)
	for _, name := range order {
		data = append(data, a.Tensors[name].Data()...)
	}
	checksum := ComputeChecksum(data)

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersionV2)
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(dataSize))
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
	}()

	if _, err = file.Write(fixed); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err = file.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	pos := int64(FixedHeaderSize) + int64(len(headerJSON))
	if padding := (HeaderAlignment - (pos % HeaderAlignment)) % HeaderAlignment; padding > 0 {
		if _, err = file.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}
	if _, err = file.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// stringToDType maps serialized dtype tags back to runtime types.
func stringToDType(s string) (tensor.DataType, bool) {
	return tensor.ParseDataType(s)
}
