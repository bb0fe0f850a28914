package ml

import (
	"fmt"

	"github.com/b0tShaman/glove-go/data"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
)

const (
	// BinaryText saves text files only.
	BinaryText BinaryMode = iota
	// BinaryOnly saves raw float64 files only.
	BinaryOnly
	// BinaryBoth saves both.
	BinaryBoth
)

const (
	// ModelAll writes word and context vectors with their biases.
	ModelAll OutputModel = iota
	// ModelWord writes word vectors only, no bias.
	ModelWord
	// ModelSum writes word + context vectors, no bias.
	ModelSum
)

var (
	ErrInvalidConfig      = errors.New("invalid training config")
	ErrReservedWord       = errors.New("vocabulary contains reserved word " + data.UNK)
	ErrShortVocab         = errors.New("vocabulary ended before the expected row count")
	ErrInsufficientMemory = errors.New("not enough memory for parameter store")
)

type BinaryMode int
type OutputModel int

// TrainingConfig is built once and handed by value to the trainer and its workers.
type TrainingConfig struct {
	Verbose         int
	VectorSize      int
	Threads         int
	Iterations      int
	LearningRate    float64 // eta
	Alpha           float64 // weighting exponent
	XMax            float64 // weighting cutoff
	Binary          BinaryMode
	Model           OutputModel
	SaveGradsq      bool
	CheckpointEvery int // <= 0 disables checkpoints
	UnkVector       bool
	Seed            uint64

	InputFile  string // shuffled co-occurrence records
	VocabFile  string
	SaveFile   string // output prefix, ".txt"/".bin" appended
	GradsqFile string

	// Optional binary files to resume from instead of random initialisation.
	InitFile       string
	InitGradsqFile string
}

func DefaultConfig() TrainingConfig {
	return TrainingConfig{
		Verbose:         0,
		VectorSize:      50,
		Threads:         8,
		Iterations:      25,
		LearningRate:    0.05,
		Alpha:           0.75,
		XMax:            100,
		Binary:          BinaryText,
		Model:           ModelSum,
		SaveGradsq:      false,
		CheckpointEvery: 0,
		UnkVector:       true,
		Seed:            1,
		SaveFile:        "vectors",
		GradsqFile:      "gradsq",
	}
}

// Normalize applies the silent fallbacks: an unknown output model becomes ModelSum
// and a non-positive thread count becomes the logical CPU count.
func (cfg TrainingConfig) Normalize() TrainingConfig {
	if cfg.Model != ModelAll && cfg.Model != ModelWord && cfg.Model != ModelSum {
		cfg.Model = ModelSum
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 8
		if n, err := cpu.Counts(true); err == nil && n > 0 {
			cfg.Threads = n
		}
	}
	return cfg
}

func (cfg TrainingConfig) Validate() error {
	switch {
	case cfg.VectorSize <= 0:
		return errors.Wrapf(ErrInvalidConfig, "vector size %d", cfg.VectorSize)
	case cfg.Iterations < 0:
		return errors.Wrapf(ErrInvalidConfig, "iterations %d", cfg.Iterations)
	case cfg.Threads <= 0:
		return errors.Wrapf(ErrInvalidConfig, "threads %d", cfg.Threads)
	case cfg.XMax <= 0:
		return errors.Wrapf(ErrInvalidConfig, "x_max %v", cfg.XMax)
	case cfg.Binary < BinaryText || cfg.Binary > BinaryBoth:
		return errors.Wrapf(ErrInvalidConfig, "binary mode %d", cfg.Binary)
	case cfg.InputFile == "" || cfg.VocabFile == "" || cfg.SaveFile == "":
		return errors.Wrap(ErrInvalidConfig, "input, vocab and save files are required")
	case cfg.InitGradsqFile != "" && cfg.InitFile == "":
		return errors.Wrap(ErrInvalidConfig, "init gradsq file given without init file")
	case cfg.SaveGradsq && cfg.GradsqFile == "":
		return errors.Wrap(ErrInvalidConfig, "gradsq file is required when saving gradsq")
	}
	return nil
}

func (cfg TrainingConfig) String() string {
	return fmt.Sprintf("vector size: %d, threads: %d, iter: %d, eta: %g, alpha: %g, x_max: %g, binary: %d, model: %d",
		cfg.VectorSize, cfg.Threads, cfg.Iterations, cfg.LearningRate, cfg.Alpha, cfg.XMax, cfg.Binary, cfg.Model)
}
