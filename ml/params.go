package ml

import (
	"bufio"
	"encoding/binary"
	"io"
	"math/rand/v2"
	"os"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/mem"
)

// Params is the shared parameter store.
//
// W and G have 2*V rows of D+1 columns. Rows 0..V-1 hold word vectors, rows V..2V-1 hold
// context vectors, and the last column of every row is that row's bias. G accumulates
// squared gradients for AdaGrad and starts at 1 so the first step uses the plain learning rate.
//
// Training workers mutate W and G concurrently without locks (Hogwild). Element reads and
// writes are single aligned 64-bit words, so a racing worker observes either the old or
// the new value of a component, never a torn one; lost updates are tolerated by the algorithm.
type Params struct {
	VocabSize int
	Dim       int
	W         *Matrix
	G         *Matrix
}

// NewParams allocates and initialises both buffers. W is uniform in [-0.5/dim, 0.5/dim],
// G is 1.0 everywhere.
func NewParams(vocabSize, dim int, rng *rand.Rand) (*Params, error) {
	if vocabSize <= 0 || dim <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "vocab size %d, dim %d", vocabSize, dim)
	}
	if err := checkMemory(vocabSize, dim); err != nil {
		return nil, err
	}

	p := &Params{
		VocabSize: vocabSize,
		Dim:       dim,
		W:         NewMatrix(2*vocabSize, dim+1),
		G:         NewMatrix(2*vocabSize, dim+1),
	}
	p.W.RandomizeUniform(rng, float64(dim))
	p.G.Fill(1.0)
	return p, nil
}

// checkMemory refuses a store larger than the host's physical memory. Anything smaller
// is left to the allocator. If the host cannot report memory the check is skipped.
func checkMemory(vocabSize, dim int) error {
	need := storeBytes(vocabSize, dim)
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Total == 0 {
		return nil
	}
	if need > vm.Total {
		return errors.Wrapf(ErrInsufficientMemory, "need %d bytes, %d total", need, vm.Total)
	}
	return nil
}

// storeBytes is the size of W and G together.
func storeBytes(vocabSize, dim int) uint64 {
	return 2 * 2 * uint64(vocabSize) * uint64(dim+1) * 8
}

// Stride is the row length in W and G.
func (p *Params) Stride() int { return p.Dim + 1 }

// WordRow returns the offset of word id (1-based) in the flat buffers.
func (p *Params) WordRow(id int32) int {
	return (int(id) - 1) * p.Stride()
}

// ContextRow returns the offset of context id (1-based) in the flat buffers.
func (p *Params) ContextRow(id int32) int {
	return (int(id) - 1 + p.VocabSize) * p.Stride()
}

// Snapshot deep-copies W and G.
func (p *Params) Snapshot() *Params {
	return &Params{
		VocabSize: p.VocabSize,
		Dim:       p.Dim,
		W:         p.W.Clone(),
		G:         p.G.Clone(),
	}
}

// LoadBinary overwrites W (and G, when gPath is set) from files written in binary mode.
func (p *Params) LoadBinary(wPath, gPath string) error {
	if err := readFloats(wPath, p.W.data); err != nil {
		return err
	}
	if gPath == "" {
		return nil
	}
	return readFloats(gPath, p.G.data)
}

func readFloats(path string, dst []float64) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open parameter file %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat parameter file %s", path)
	}
	if want := int64(len(dst)) * 8; info.Size() != want {
		return errors.Errorf("parameter file %s has %d bytes, want %d", path, info.Size(), want)
	}
	if err := binary.Read(bufio.NewReader(f), binary.LittleEndian, dst); err != nil && err != io.EOF {
		return errors.Wrapf(err, "read parameter file %s", path)
	}
	return nil
}
