package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"os"
	"slices"
	"strings"
)

const metadataKey = "__metadata__"

// floatCodec decodes one stored dtype into float32.
type floatCodec struct {
	size   int
	decode func(dst []float32, src []byte)
}

var floatCodecs = map[string]floatCodec{
	"F32": {4, func(dst []float32, src []byte) {
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	}},
	"F16": {2, func(dst []float32, src []byte) {
		for i := range dst {
			dst[i] = float16ToFloat32(binary.LittleEndian.Uint16(src[i*2:]))
		}
	}},
	"BF16": {2, func(dst []float32, src []byte) {
		for i := range dst {
			dst[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(src[i*2:])) << 16)
		}
	}},
}

// intCodec decodes one stored integer dtype into int64.
type intCodec struct {
	size   int
	decode func(dst []int64, src []byte)
}

var intCodecs = map[string]intCodec{
	"I64": {8, func(dst []int64, src []byte) {
		for i := range dst {
			dst[i] = int64(binary.LittleEndian.Uint64(src[i*8:]))
		}
	}},
	"I32": {4, func(dst []int64, src []byte) {
		for i := range dst {
			dst[i] = int64(int32(binary.LittleEndian.Uint32(src[i*4:])))
		}
	}},
}

// ErrTensorNotFound is returned when a requested tensor is not stored.
var ErrTensorNotFound = errors.New("safetensors: tensor not found")

// StoreOptions controls how stored tensors are exposed.
type StoreOptions struct {
	// Rename maps a stored name to the name it is looked up by. An empty
	// result drops the tensor. Nil keeps every name.
	Rename func(name string) string
	// SkipNonFloat drops tensors whose dtype has no float32 decoding, such
	// as the I64 step buffer of PyTorch checkpoints, instead of failing.
	SkipNonFloat bool
}

// Store is an opened safetensors payload. Tensors are decoded on access; the
// string metadata is parsed on open.
type Store struct {
	raw      []byte
	payload  []byte
	entries  map[string]entry
	ints     map[string]headerEntry // integer tensors by stored name
	names    []string
	skipped  []string
	metadata map[string]string
}

type entry struct {
	dtype string
	shape []int64
	data  []byte
}

type headerEntry struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

func OpenStore(path string, opts StoreOptions) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safetensors: read %s: %w", path, err)
	}

	return OpenStoreFromBytes(data, opts)
}

func OpenStoreFromBytes(data []byte, opts StoreOptions) (*Store, error) {
	headerEnd, header, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	payload := data[headerEnd:]
	s := &Store{
		raw:     data,
		payload: payload,
		entries: make(map[string]entry, len(header)),
		ints:    make(map[string]headerEntry),
	}

	if s.metadata, err = parseMetadata(header[metadataKey]); err != nil {
		return nil, err
	}

	for _, stored := range slices.Sorted(maps.Keys(header)) {
		if stored == metadataKey {
			continue
		}

		var h headerEntry
		decodeErr := json.Unmarshal(header[stored], &h)
		h.DType = strings.ToUpper(h.DType)

		if _, ok := intCodecs[h.DType]; ok && decodeErr == nil {
			s.ints[stored] = h
		}

		name := stored
		if opts.Rename != nil {
			name = strings.TrimSpace(opts.Rename(stored))
		}

		if name == "" {
			continue
		}

		if decodeErr != nil {
			return nil, fmt.Errorf("safetensors: decode header entry %q: %w", stored, decodeErr)
		}

		codec, ok := floatCodecs[h.DType]
		if !ok {
			if opts.SkipNonFloat {
				s.skipped = append(s.skipped, stored)
				continue
			}

			return nil, fmt.Errorf("safetensors: tensor %q has unsupported dtype %q", stored, h.DType)
		}

		if _, dup := s.entries[name]; dup {
			return nil, fmt.Errorf("safetensors: tensors %q and another entry both map to %q", stored, name)
		}

		raw, err := h.slice(payload, codec.size)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", stored, err)
		}

		s.entries[name] = entry{dtype: h.DType, shape: h.Shape, data: raw}
		s.names = append(s.names, name)
	}

	if len(s.entries) == 0 {
		return nil, errors.New("safetensors: no tensors found")
	}

	slices.Sort(s.names)

	return s, nil
}

// slice validates the entry against the payload and returns its bytes.
func (h headerEntry) slice(payload []byte, elemSize int) ([]byte, error) {
	n, err := shapeElementCount(h.Shape)
	if err != nil {
		return nil, err
	}

	start, end := h.Offsets[0], h.Offsets[1]
	if start < 0 || end < start || end > len(payload) {
		return nil, fmt.Errorf("data offsets [%d:%d] outside payload of %d bytes", start, end, len(payload))
	}

	if need := int(n) * elemSize; end-start < need {
		return nil, fmt.Errorf("shape %v needs %d bytes of %s, data has %d", h.Shape, need, h.DType, end-start)
	}

	return payload[start:end], nil
}

// Metadata returns a copy of the string map stored under __metadata__. It is
// empty, never nil, when the file carries none.
func (s *Store) Metadata() map[string]string {
	return maps.Clone(s.metadata)
}

// Shape returns the stored shape of name without decoding its data.
func (s *Store) Shape(name string) ([]int64, bool) {
	e, ok := s.entries[name]
	if !ok {
		return nil, false
	}

	return slices.Clone(e.shape), true
}

// DType returns the stored dtype of name, e.g. "F32".
func (s *Store) DType(name string) string {
	return s.entries[name].dtype
}

// Names lists the exposed tensors in sorted order.
func (s *Store) Names() []string {
	return slices.Clone(s.names)
}

// Skipped lists stored tensors dropped by SkipNonFloat.
func (s *Store) Skipped() []string {
	return slices.Clone(s.skipped)
}

func (s *Store) Has(name string) bool {
	_, ok := s.entries[name]
	return ok
}

// Tensor decodes name to float32.
func (s *Store) Tensor(name string) (*Tensor, error) {
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrTensorNotFound, name, summarizeNames(s.names))
	}

	n, err := shapeElementCount(e.shape)
	if err != nil {
		return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}

	data := make([]float32, n)
	floatCodecs[e.dtype].decode(data, e.data)

	return &Tensor{Name: name, Shape: slices.Clone(e.shape), Data: data}, nil
}

// Int64 decodes the integer tensor stored under name. Names are matched as
// stored, and integer tensors stay readable when Rename or SkipNonFloat hide
// them from Names.
func (s *Store) Int64(name string) ([]int64, error) {
	h, ok := s.ints[name]
	if !ok {
		return nil, fmt.Errorf("%w: integer tensor %q", ErrTensorNotFound, name)
	}

	codec := intCodecs[h.DType]

	raw, err := h.slice(s.payload, codec.size)
	if err != nil {
		return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}

	n, err := shapeElementCount(h.Shape)
	if err != nil {
		return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}

	out := make([]int64, n)
	codec.decode(out, raw)

	return out, nil
}

func (s *Store) Close() {
	s.raw = nil
	s.payload = nil
	s.ints = nil
	s.entries = nil
	s.names = nil
	s.skipped = nil
	s.metadata = nil
}

func decodeHeader(data []byte) (int, map[string]json.RawMessage, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("safetensors: file too short (%d bytes)", len(data))
	}

	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > uint64(len(data)-8) {
		return 0, nil, fmt.Errorf("safetensors: header length %d exceeds file size %d", headerLen, len(data))
	}

	headerEnd := 8 + int(headerLen)

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:headerEnd], &header); err != nil {
		return 0, nil, fmt.Errorf("safetensors: parse header: %w", err)
	}

	return headerEnd, header, nil
}

func parseMetadata(raw json.RawMessage) (map[string]string, error) {
	out := map[string]string{}
	if len(raw) == 0 {
		return out, nil
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("safetensors: decode %s: %w", metadataKey, err)
	}

	return out, nil
}

func shapeElementCount(shape []int64) (int64, error) {
	total := int64(1)

	for _, d := range shape {
		switch {
		case d < 0:
			return 0, fmt.Errorf("negative dimension in shape %v", shape)
		case d == 0:
			total = 0
		case total > math.MaxInt64/d:
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		default:
			total *= d
		}
	}

	return total, nil
}

// float16ToFloat32 widens an IEEE 754 half-precision value.
func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h & 0x03ff)

	switch {
	case exp == 0 && frac == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// Subnormal half: value is frac * 2^-24.
		v := float32(frac) * (1.0 / (1 << 24))
		if sign != 0 {
			v = -v
		}

		return v
	case exp == 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | frac<<13)
	default:
		return math.Float32frombits(sign | (exp+112)<<23 | frac<<13)
	}
}

func summarizeNames(names []string) string {
	if len(names) == 0 {
		return "none"
	}

	const maxNames = 8
	if len(names) <= maxNames {
		return strings.Join(names, ", ")
	}

	return strings.Join(names[:maxNames], ", ") + ", ..."
}
