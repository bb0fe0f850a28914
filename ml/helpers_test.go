package ml

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/b0tShaman/glove-go/data"
	"github.com/b0tShaman/glove-go/logging"
	"github.com/stretchr/testify/require"
)

// testConfig writes a vocabulary of words (one "word freq" per line) and the given records
// into a temp dir and returns a single-threaded config pointing at them.
func testConfig(t *testing.T, words []string, recs []data.Record) TrainingConfig {
	t.Helper()
	dir := t.TempDir()

	var sb strings.Builder
	for i, w := range words {
		sb.WriteString(w)
		sb.WriteString(" ")
		sb.WriteString(strings.Repeat("9", len(words)-i))
		sb.WriteString("\n")
	}
	vocabPath := filepath.Join(dir, "vocab.txt")
	require.NoError(t, os.WriteFile(vocabPath, []byte(sb.String()), 0644))

	inputPath := filepath.Join(dir, "cooccur.bin")
	require.NoError(t, data.WriteRecordsFile(inputPath, recs))

	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(outDir, 0755))

	cfg := DefaultConfig()
	cfg.Threads = 1
	cfg.InputFile = inputPath
	cfg.VocabFile = vocabPath
	cfg.SaveFile = filepath.Join(outDir, "vectors")
	cfg.GradsqFile = filepath.Join(outDir, "gradsq")
	return cfg
}

func newTestTrainer(t *testing.T, cfg TrainingConfig) *Trainer {
	t.Helper()
	tr, err := NewTrainer(cfg, logging.Discard())
	require.NoError(t, err)
	return tr
}

func newTestParams(t testing.TB, vocabSize, dim int) *Params {
	t.Helper()
	p, err := NewParams(vocabSize, dim, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	return p
}

// randomRecords draws n records over a vocabulary of size v with counts in [1, 200).
func randomRecords(n, v int, seed uint64) []data.Record {
	rng := rand.New(rand.NewPCG(seed, seed))
	recs := make([]data.Record, n)
	for i := range recs {
		recs[i] = data.Record{
			Word1: int32(rng.IntN(v) + 1),
			Word2: int32(rng.IntN(v) + 1),
			Val:   1 + rng.Float64()*199,
		}
	}
	return recs
}

func outputFiles(t *testing.T, cfg TrainingConfig) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Dir(cfg.SaveFile))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}
