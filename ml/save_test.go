package ml

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/b0tShaman/glove-go/data"
	"github.com/b0tShaman/glove-go/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseLine(t *testing.T, line string) (string, []float64) {
	t.Helper()
	fields := strings.Fields(line)
	require.NotEmpty(t, fields)
	vals := make([]float64, len(fields)-1)
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		require.NoError(t, err)
		vals[i] = v
	}
	return fields[0], vals
}

func saveParams(t *testing.T, cfg TrainingConfig, p *Params) error {
	t.Helper()
	return NewSaver(cfg, logging.Discard()).Save(p, 0)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "vectors.txt", OutputName("vectors", 0, "txt"))
	assert.Equal(t, "vectors.bin", OutputName("vectors", -3, "bin"))
	assert.Equal(t, "vectors.007.txt", OutputName("vectors", 7, "txt"))
	assert.Equal(t, "out/gradsq.123.bin", OutputName("out/gradsq", 123, "bin"))
	assert.Equal(t, "v.1000.txt", OutputName("v", 1000, "txt"))
}

func TestSaveTextModels(t *testing.T) {
	const D = 3
	tests := []struct {
		name   string
		model  OutputModel
		fields int
		want   func(w, c []float64, b int) float64
	}{
		{"all", ModelAll, 2 * (D + 1), func(w, c []float64, b int) float64 {
			if b <= D {
				return w[b]
			}
			return c[b-D-1]
		}},
		{"word", ModelWord, D, func(w, c []float64, b int) float64 { return w[b] }},
		{"sum", ModelSum, D, func(w, c []float64, b int) float64 { return w[b] + c[b] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, []string{"alpha", "beta"}, nil)
			cfg.VectorSize = D
			cfg.Model = tt.model
			cfg.UnkVector = false
			p := newTestParams(t, 2, D)
			require.NoError(t, saveParams(t, cfg, p))

			lines := readLines(t, cfg.SaveFile+".txt")
			require.Len(t, lines, 2)
			for a, line := range lines {
				word, vals := parseLine(t, line)
				assert.Equal(t, []string{"alpha", "beta"}[a], word)
				require.Len(t, vals, tt.fields)
				for b, v := range vals {
					assert.InDelta(t, tt.want(p.W.Row(a), p.W.Row(2+a), b), v, 1e-6)
				}
			}
		})
	}
}

func TestSaveAppendsUnkVector(t *testing.T) {
	const D = 2
	cfg := testConfig(t, []string{"x", "y", "z"}, nil)
	cfg.VectorSize = D
	cfg.Model = ModelWord
	p := newTestParams(t, 3, D)
	require.NoError(t, saveParams(t, cfg, p))

	lines := readLines(t, cfg.SaveFile+".txt")
	require.Len(t, lines, 4)
	word, vals := parseLine(t, lines[3])
	assert.Equal(t, data.UNK, word)
	require.Len(t, vals, D)
	for b := 0; b < D; b++ {
		mean := (p.W.Row(0)[b] + p.W.Row(1)[b] + p.W.Row(2)[b]) / 3
		assert.InDelta(t, mean, vals[b], 1e-6)
	}
}

func TestUnkVectorsUsesRarestWords(t *testing.T) {
	const V, D = 150, 1
	p := newTestParams(t, V, D)
	for a := 0; a < V; a++ {
		p.W.Row(a)[0] = float64(a)
		p.W.Row(a)[D] = 1
		p.W.Row(V + a)[0] = -float64(a)
	}
	word, ctx := unkVectors(p)
	// Mean of 50..149.
	assert.InDelta(t, 99.5, word[0], 1e-9)
	assert.InDelta(t, 1.0, word[D], 1e-9)
	assert.InDelta(t, -99.5, ctx[0], 1e-9)
}

func TestSaveGradsqText(t *testing.T) {
	const D = 2
	cfg := testConfig(t, []string{"a", "b"}, nil)
	cfg.VectorSize = D
	cfg.SaveGradsq = true
	p := newTestParams(t, 2, D)
	p.G.Row(3)[1] = 2.5

	require.NoError(t, saveParams(t, cfg, p))
	lines := readLines(t, cfg.GradsqFile+".txt")
	require.Len(t, lines, 2, "no unk line in gradsq output")

	word, vals := parseLine(t, lines[1])
	assert.Equal(t, "b", word)
	assert.Equal(t, []float64{1, 1, 1, 1, 2.5, 1}, vals)
	assert.Equal(t, "a 1.000000 1.000000 1.000000 1.000000 1.000000 1.000000", lines[0])
}

func TestSaveBinaryOnlyWritesNoText(t *testing.T) {
	cfg := testConfig(t, []string{"a", "b"}, nil)
	cfg.VectorSize = 2
	cfg.Binary = BinaryOnly
	cfg.SaveGradsq = true
	require.NoError(t, saveParams(t, cfg, newTestParams(t, 2, 2)))

	assert.ElementsMatch(t, []string{"vectors.bin", "gradsq.bin"}, outputFiles(t, cfg))
	info, err := os.Stat(cfg.SaveFile + ".bin")
	require.NoError(t, err)
	assert.Equal(t, int64(2*2*3*8), info.Size())
}

func TestSaveRejectsReservedWordAndLeavesNothing(t *testing.T) {
	cfg := testConfig(t, []string{"a", data.UNK, "c"}, nil)
	cfg.VectorSize = 2
	cfg.Binary = BinaryBoth
	cfg.SaveGradsq = true

	err := saveParams(t, cfg, newTestParams(t, 3, 2))
	assert.ErrorIs(t, err, ErrReservedWord)
	assert.Empty(t, outputFiles(t, cfg))
}

func TestSaveShortVocab(t *testing.T) {
	cfg := testConfig(t, []string{"a", "b"}, nil)
	cfg.VectorSize = 2

	err := saveParams(t, cfg, newTestParams(t, 3, 2))
	assert.ErrorIs(t, err, ErrShortVocab)
	assert.Empty(t, outputFiles(t, cfg))
}

func TestSaveReplacesExistingOutput(t *testing.T) {
	cfg := testConfig(t, []string{"a"}, nil)
	cfg.VectorSize = 1
	cfg.UnkVector = false
	require.NoError(t, os.WriteFile(cfg.SaveFile+".txt", []byte("stale\n"), 0644))

	require.NoError(t, saveParams(t, cfg, newTestParams(t, 1, 1)))
	lines := readLines(t, cfg.SaveFile+".txt")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "a "))
	assert.Equal(t, []string{"vectors.txt"}, outputFiles(t, cfg))
}

func TestSaveMissingDirectory(t *testing.T) {
	cfg := testConfig(t, []string{"a"}, nil)
	cfg.VectorSize = 1
	cfg.SaveFile = filepath.Join(filepath.Dir(cfg.SaveFile), "nope", "vectors")
	assert.Error(t, saveParams(t, cfg, newTestParams(t, 1, 1)))
}

func TestSaveOutputPermissions(t *testing.T) {
	cfg := testConfig(t, []string{"a", "b"}, nil)
	cfg.VectorSize = 2
	cfg.Binary = BinaryBoth
	cfg.SaveGradsq = true
	require.NoError(t, os.WriteFile(cfg.GradsqFile+".txt", []byte("old\n"), 0600))
	require.NoError(t, os.Chmod(cfg.GradsqFile+".txt", 0640))

	require.NoError(t, saveParams(t, cfg, newTestParams(t, 2, 2)))
	for _, name := range []string{cfg.SaveFile + ".txt", cfg.SaveFile + ".bin", cfg.GradsqFile + ".bin"} {
		info, err := os.Stat(name)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0644), info.Mode().Perm(), name)
	}
	info, err := os.Stat(cfg.GradsqFile + ".txt")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm(), "replaced file keeps its mode")
}

func TestSaveFailedRenameLeavesNoTempFiles(t *testing.T) {
	cfg := testConfig(t, []string{"a", "b"}, nil)
	cfg.VectorSize = 2
	cfg.Binary = BinaryBoth
	blocker := cfg.SaveFile + ".txt"
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "keep"), 0755))

	err := saveParams(t, cfg, newTestParams(t, 2, 2))
	require.Error(t, err)

	// Binary output is staged first and was renamed before the text file failed.
	assert.ElementsMatch(t, []string{"vectors.bin", "vectors.txt"}, outputFiles(t, cfg))
	assert.DirExists(t, blocker)
}

func TestAppendFloatNonFinite(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{0.5, " 0.500000"},
		{-1.25, " -1.250000"},
		{math.Inf(1), " inf"},
		{math.Inf(-1), " -inf"},
		{math.NaN(), " nan"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(appendFloat(nil, tt.v)))
	}
}

func TestSaveGradsqTextWithInfinity(t *testing.T) {
	cfg := testConfig(t, []string{"a"}, nil)
	cfg.VectorSize = 1
	cfg.SaveGradsq = true
	p := newTestParams(t, 1, 1)
	p.G.Row(0)[0] = math.Inf(1)

	require.NoError(t, saveParams(t, cfg, p))
	assert.Equal(t, []string{"a inf 1.000000 1.000000 1.000000"}, readLines(t, cfg.GradsqFile+".txt"))
}
