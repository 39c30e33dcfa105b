package archive

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

// maxHeaderSize and maxDataSize reject absurd header claims before
// allocating.
const (
	maxHeaderSize = 100 * 1024 * 1024
	maxDataSize   = 16 * 1024 * 1024 * 1024
)

// Read parses a .lamina file, validating the checksum on v2 archives.
func (BinaryCodec) Read(path string) (a *Archive, err error) {
	const op = "archive.Read"
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
	}()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(file, magic); err != nil {
		return nil, fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if string(magic) != MagicBytes {
		return nil, graph.Errorf(graph.KindValidation, op, "not a .lamina file: bad magic %q", magic)
	}
	var version uint32
	if err := binary.Read(file, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}

	switch version {
	case FormatVersion:
		return readV1(file)
	case FormatVersionV2:
		return readV2(file)
	default:
		return nil, graph.Errorf(graph.KindValidation, op,
			"unsupported format version %d, expected %d or %d", version, FormatVersion, FormatVersionV2)
	}
}

func readV1(file *os.File) (*Archive, error) {
	var flags uint32
	if err := binary.Read(file, binary.LittleEndian, &flags); err != nil {
		return nil, fmt.Errorf("failed to read flags: %w", err)
	}
	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > maxHeaderSize {
		return nil, graph.Errorf(graph.KindValidation, "archive.Read",
			"header size %d exceeds limit", headerSize)
	}
	header, err := readHeaderJSON(file, headerSize)
	if err != nil {
		return nil, err
	}
	pos := int64(4+4+4+8) + int64(headerSize)
	dataOffset := pos + (HeaderAlignment-(pos%HeaderAlignment))%HeaderAlignment
	return readTensors(file, header, dataOffset)
}

func readV2(file *os.File) (*Archive, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to start: %w", err)
	}
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(file, fixed); err != nil {
		return nil, fmt.Errorf("failed to read fixed header: %w", err)
	}
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	var stored [ChecksumSize]byte
	copy(stored[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > maxHeaderSize {
		return nil, graph.Errorf(graph.KindValidation, "archive.Read",
			"header size %d exceeds limit", headerSize)
	}
	if dataSize > maxDataSize {
		return nil, graph.Errorf(graph.KindValidation, "archive.Read",
			"data size %d exceeds limit", dataSize)
	}
	header, err := readHeaderJSON(file, headerSize)
	if err != nil {
		return nil, err
	}
	pos := int64(FixedHeaderSize) + int64(headerSize)
	dataOffset := pos + (HeaderAlignment-(pos%HeaderAlignment))%HeaderAlignment

	data := make([]byte, dataSize)
	if _, err := file.Seek(dataOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to tensor data: %w", err)
	}
	if _, err := io.ReadFull(file, data); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if err := ValidateChecksum(ComputeChecksum(data), stored); err != nil {
		return nil, err
	}
	return assemble(header, data)
}

func readHeaderJSON(file *os.File, size uint64) (*Header, error) {
	raw := make([]byte, size)
	if _, err := io.ReadFull(file, raw); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, graph.WrapErr(graph.KindSerialization, "archive.Read", err)
	}
	return &h, nil
}

func readTensors(file *os.File, header *Header, dataOffset int64) (*Archive, error) {
	var total int64
	for _, meta := range header.Tensors {
		if meta.Offset < 0 || meta.Size < 0 {
			return nil, graph.Errorf(graph.KindValidation, "archive.Read",
				"tensor %q has negative offset or size", meta.Name)
		}
		if end := meta.Offset + meta.Size; end > total {
			total = end
		}
	}
	if total > maxDataSize {
		return nil, graph.Errorf(graph.KindValidation, "archive.Read",
			"data size %d exceeds limit", total)
	}
	data := make([]byte, total)
	if _, err := file.Seek(dataOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to tensor data: %w", err)
	}
	if _, err := io.ReadFull(file, data); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	return assemble(header, data)
}

// assemble slices the data section into named tensors per the header metas.
func assemble(header *Header, data []byte) (*Archive, error) {
	const op = "archive.Read"
	a := &Archive{Header: *header, Tensors: make(map[string]*tensor.Raw, len(header.Tensors))}
	for _, meta := range header.Tensors {
		dt, ok := stringToDType(meta.DType)
		if !ok {
			return nil, graph.Errorf(graph.KindValidation, op,
				"tensor %q has unknown dtype %q", meta.Name, meta.DType)
		}
		if meta.Offset < 0 || meta.Size < 0 || meta.Offset+meta.Size > int64(len(data)) {
			return nil, graph.Errorf(graph.KindValidation, op,
				"tensor %q extends past the data section", meta.Name)
		}
		buf := make([]byte, meta.Size)
		copy(buf, data[meta.Offset:meta.Offset+meta.Size])
		t, err := tensor.FromBytes(buf, tensor.Shape(meta.Shape), dt)
		if err != nil {
			return nil, graph.WrapErr(graph.KindValidation, op, err)
		}
		a.Tensors[meta.Name] = t
	}
	return a, nil
}
