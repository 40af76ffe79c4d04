package safetensors

import (
	"errors"
	"fmt"
)

// Tensor holds a single tensor loaded from a safetensors file.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// LoadFirstTensor reads a safetensors file and returns the first tensor in
// name order. Mel output files carry a single tensor, so this is how they are
// read back.
func LoadFirstTensor(path string) (*Tensor, error) {
	store, err := OpenStore(path, StoreOptions{})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return firstTensor(store)
}

// LoadMatrix reads the tensor called name from path and checks that it is
// rank 2, returning its data with rows and columns. It is used to read
// [frames, mels] spectrogram files.
func LoadMatrix(path, name string) ([]float32, int64, int64, error) {
	store, err := OpenStore(path, StoreOptions{})
	if err != nil {
		return nil, 0, 0, err
	}
	defer store.Close()

	t, err := store.Tensor(name)
	if err != nil {
		return nil, 0, 0, err
	}

	if len(t.Shape) != 2 {
		return nil, 0, 0, fmt.Errorf("safetensors: tensor %q has %dD shape %v, expected 2D", name, len(t.Shape), t.Shape)
	}

	return t.Data, t.Shape[0], t.Shape[1], nil
}

func firstTensor(store *Store) (*Tensor, error) {
	names := store.Names()
	if len(names) == 0 {
		return nil, errors.New("safetensors: no tensors found")
	}

	return store.Tensor(names[0])
}
