package safetensors

import (
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"
)

func TestStore_HalfPrecisionDecoding(t *testing.T) {
	blob := encodeRaw(t, nil,
		rawTensor{name: "bf16", dtype: "BF16", shape: []int64{3}, data: u16Bytes(0x3f80, 0xc000, 0x3f00)},
		rawTensor{name: "f16", dtype: "f16", shape: []int64{3}, data: u16Bytes(0x3c00, 0xc000, 0x3800)},
	)

	store, err := OpenStoreFromBytes(blob, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	want := []float32{1, -2, 0.5}

	for _, name := range []string{"bf16", "f16"} {
		got, err := store.Tensor(name)
		if err != nil {
			t.Fatalf("Tensor(%s): %v", name, err)
		}

		if !slices.Equal(got.Data, want) {
			t.Errorf("%s = %v, want %v", name, got.Data, want)
		}
	}

	if got := store.DType("f16"); got != "F16" {
		t.Errorf("DType(f16) = %q, want F16", got)
	}
}

func TestFloat16ToFloat32(t *testing.T) {
	tests := []struct {
		bits uint16
		want float32
	}{
		{0x0000, 0},
		{0x3c00, 1},
		{0xbc00, -1},
		{0x4248, 3.140625},
		{0x7bff, 65504},
		{0x0001, float32(math.Ldexp(1, -24))},
		{0x03ff, float32(math.Ldexp(1023, -24))},
		{0x7c00, float32(math.Inf(1))},
		{0xfc00, float32(math.Inf(-1))},
	}

	for _, tt := range tests {
		if got := float16ToFloat32(tt.bits); got != tt.want {
			t.Errorf("float16ToFloat32(%#04x) = %v, want %v", tt.bits, got, tt.want)
		}
	}

	if got := float16ToFloat32(0x8000); got != 0 || !math.Signbit(float64(got)) {
		t.Errorf("float16ToFloat32(0x8000) = %v, want -0", got)
	}

	if got := float16ToFloat32(0x7e00); !math.IsNaN(float64(got)) {
		t.Errorf("float16ToFloat32(0x7e00) = %v, want NaN", got)
	}
}

func TestStore_RenameAndDrop(t *testing.T) {
	blob := encodeRaw(t, nil,
		rawTensor{name: "module.encoder.weight", dtype: "F32", shape: []int64{2}, data: f32Bytes(1, 2)},
		rawTensor{name: "optimizer.state", dtype: "F32", shape: []int64{1}, data: f32Bytes(7)},
	)

	store, err := OpenStoreFromBytes(blob, StoreOptions{
		Rename: func(name string) string {
			if strings.HasPrefix(name, "optimizer.") {
				return ""
			}

			return strings.TrimPrefix(name, "module.")
		},
	})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	if names := store.Names(); !slices.Equal(names, []string{"encoder.weight"}) {
		t.Fatalf("Names() = %v, want [encoder.weight]", names)
	}

	if store.Has("module.encoder.weight") || !store.Has("encoder.weight") {
		t.Fatal("lookups must use the renamed key")
	}
}

func TestStore_RenameCollisionFails(t *testing.T) {
	blob := encodeRaw(t, nil,
		rawTensor{name: "module.w", dtype: "F32", shape: []int64{1}, data: f32Bytes(1)},
		rawTensor{name: "w", dtype: "F32", shape: []int64{1}, data: f32Bytes(2)},
	)

	_, err := OpenStoreFromBytes(blob, StoreOptions{
		Rename: func(name string) string { return strings.TrimPrefix(name, "module.") },
	})
	if err == nil || !strings.Contains(err.Error(), `map to "w"`) {
		t.Fatalf("err = %v, want collision on w", err)
	}
}

func TestStore_SkipNonFloat(t *testing.T) {
	blob := encodeRaw(t, nil,
		rawTensor{name: "step", dtype: "I64", shape: []int64{1}, data: make([]byte, 8)},
		rawTensor{name: "w", dtype: "F32", shape: []int64{1}, data: f32Bytes(3)},
	)

	if _, err := OpenStoreFromBytes(blob, StoreOptions{}); err == nil || !strings.Contains(err.Error(), "I64") {
		t.Fatalf("strict open err = %v, want unsupported dtype", err)
	}

	store, err := OpenStoreFromBytes(blob, StoreOptions{SkipNonFloat: true})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	if got := store.Skipped(); !slices.Equal(got, []string{"step"}) {
		t.Fatalf("Skipped() = %v, want [step]", got)
	}

	if store.Has("step") {
		t.Fatal("skipped tensor must not be exposed")
	}
}

func TestStore_DroppedTensorIsNotValidated(t *testing.T) {
	blob := encodeRaw(t, nil,
		rawTensor{name: "junk", dtype: "U8", shape: []int64{99}, data: []byte{1}},
		rawTensor{name: "w", dtype: "F32", shape: []int64{1}, data: f32Bytes(1)},
	)

	_, err := OpenStoreFromBytes(blob, StoreOptions{
		Rename: func(name string) string {
			if name == "junk" {
				return ""
			}

			return name
		},
	})
	if err != nil {
		t.Fatalf("dropped tensor should not be decoded: %v", err)
	}
}

func TestStore_MissingTensorListsAvailable(t *testing.T) {
	blob := encodeRaw(t, nil,
		rawTensor{name: "a", dtype: "F32", shape: []int64{1}, data: f32Bytes(1)},
		rawTensor{name: "b", dtype: "F32", shape: []int64{1}, data: f32Bytes(2)},
	)

	store, err := OpenStoreFromBytes(blob, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	_, err = store.Tensor("c")
	if err == nil || !strings.Contains(err.Error(), "available: a, b") {
		t.Fatalf("err = %v, want available list", err)
	}

	if !errors.Is(err, ErrTensorNotFound) {
		t.Fatalf("err = %v, want ErrTensorNotFound", err)
	}
}

func TestStore_Int64ReadsHiddenIntegerTensors(t *testing.T) {
	step := binary.LittleEndian.AppendUint64(nil, 4200)
	pair := binary.LittleEndian.AppendUint32(nil, uint32(0xFFFFFFFE)) // -2
	pair = binary.LittleEndian.AppendUint32(pair, 7)

	blob := encodeRaw(t, nil,
		rawTensor{name: "step", dtype: "I64", shape: []int64{1}, data: step},
		rawTensor{name: "ids", dtype: "i32", shape: []int64{2}, data: pair},
		rawTensor{name: "short", dtype: "I64", shape: []int64{2}, data: make([]byte, 8)},
		rawTensor{name: "w", dtype: "F32", shape: []int64{1}, data: f32Bytes(3)},
	)

	store, err := OpenStoreFromBytes(blob, StoreOptions{
		Rename: func(name string) string {
			if name == "step" {
				return ""
			}

			return name
		},
		SkipNonFloat: true,
	})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	got, err := store.Int64("step")
	if err != nil || !slices.Equal(got, []int64{4200}) {
		t.Fatalf("Int64(step) = %v, %v; want [4200]", got, err)
	}

	if got, err = store.Int64("ids"); err != nil || !slices.Equal(got, []int64{-2, 7}) {
		t.Fatalf("Int64(ids) = %v, %v; want [-2 7]", got, err)
	}

	if _, err = store.Int64("short"); err == nil {
		t.Fatal("Int64(short) succeeded on a truncated payload")
	}

	if _, err = store.Int64("w"); !errors.Is(err, ErrTensorNotFound) {
		t.Fatalf("Int64(w) err = %v, want ErrTensorNotFound", err)
	}

	if store.Has("step") || !slices.Equal(store.Names(), []string{"w"}) {
		t.Fatalf("Names() = %v, want only the float tensor", store.Names())
	}
}

func TestStore_BadLayouts(t *testing.T) {
	tests := []struct {
		name  string
		entry rawTensor
	}{
		{"negative dim", rawTensor{name: "x", dtype: "F32", shape: []int64{-1}, data: f32Bytes(1)}},
		{"short data", rawTensor{name: "x", dtype: "F16", shape: []int64{4}, data: u16Bytes(1, 2)}},
		{"overflowing shape", rawTensor{name: "x", dtype: "F32", shape: []int64{math.MaxInt64, 2}, data: f32Bytes(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := OpenStoreFromBytes(encodeRaw(t, nil, tt.entry), StoreOptions{}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestStore_MetadataIsCopied(t *testing.T) {
	blob := encodeRaw(t, map[string]string{"step": "5"},
		rawTensor{name: "w", dtype: "F32", shape: []int64{1}, data: f32Bytes(1)},
	)

	store, err := OpenStoreFromBytes(blob, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	md := store.Metadata()
	md["step"] = "changed"

	if got := store.Metadata()["step"]; got != "5" {
		t.Fatalf("metadata step = %q, want 5", got)
	}
}

func TestSummarizeNames(t *testing.T) {
	if got := summarizeNames(nil); got != "none" {
		t.Errorf("summarizeNames(nil) = %q", got)
	}

	many := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	if got := summarizeNames(many); !strings.HasSuffix(got, "h, ...") {
		t.Errorf("summarizeNames(many) = %q", got)
	}
}
