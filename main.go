package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/b0tShaman/glove-go/logging"
	"github.com/b0tShaman/glove-go/ml"
	"github.com/spf13/cobra"
)

// -------- MAIN -------- //
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "glove",
		Short:         "Train GloVe word vectors from a shuffled co-occurrence file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newTrainCmd())
	rootCmd.AddCommand(newNeighborsCmd())
	return rootCmd
}

func newTrainCmd() *cobra.Command {
	cfg := ml.DefaultConfig()
	var binary, model int
	var noUnk bool

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit word and context vectors with AdaGrad",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Binary = ml.BinaryMode(binary)
			cfg.Model = ml.OutputModel(model)
			cfg.UnkVector = !noUnk
			return runTrain(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.IntVar(&cfg.Verbose, "verbose", cfg.Verbose, "Set verbosity: 0, 1, or 2")
	f.IntVar(&cfg.VectorSize, "vector-size", cfg.VectorSize, "Dimension of word vector representations (excluding bias term)")
	f.IntVar(&cfg.Threads, "threads", cfg.Threads, "Number of threads; 0 uses every logical CPU")
	f.IntVar(&cfg.Iterations, "iter", cfg.Iterations, "Number of training iterations")
	f.Float64Var(&cfg.LearningRate, "eta", cfg.LearningRate, "Initial learning rate")
	f.Float64Var(&cfg.Alpha, "alpha", cfg.Alpha, "Parameter in exponent of weighting function")
	f.Float64Var(&cfg.XMax, "x-max", cfg.XMax, "Parameter specifying cutoff in weighting function")
	f.IntVar(&binary, "binary", int(cfg.Binary), "Save output in binary format (0: text, 1: binary, 2: both)")
	f.IntVar(&model, "model", int(cfg.Model), "Model for word vector output (0: all with bias, 1: word only, 2: word + context)")
	f.BoolVar(&cfg.SaveGradsq, "save-gradsq", cfg.SaveGradsq, "Save accumulated squared gradients")
	f.IntVar(&cfg.CheckpointEvery, "checkpoint-every", cfg.CheckpointEvery, "Checkpoint the model every N iterations; 0 disables")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Seed for parameter initialisation")
	f.BoolVar(&noUnk, "no-unk-vec", false, "Do not append a synthesized <unk> vector to text output")
	f.StringVar(&cfg.InputFile, "input-file", "cooccurrence.shuf.bin", "Binary input file of shuffled cooccurrence data")
	f.StringVar(&cfg.VocabFile, "vocab-file", "vocab.txt", "File containing vocabulary (truncated unigram counts)")
	f.StringVar(&cfg.SaveFile, "save-file", cfg.SaveFile, "Filename, excluding extension, for word vector output")
	f.StringVar(&cfg.GradsqFile, "gradsq-file", cfg.GradsqFile, "Filename, excluding extension, for squared gradient output")
	f.StringVar(&cfg.InitFile, "init-file", "", "Binary vectors file to resume from instead of random initialisation")
	f.StringVar(&cfg.InitGradsqFile, "init-gradsq-file", "", "Binary gradsq file to resume from (requires --init-file)")
	return cmd
}

func runTrain(ctx context.Context, cfg ml.TrainingConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.WithRun(logging.New(cfg.Verbose, os.Stderr))
	trainer, err := ml.NewTrainer(cfg, log)
	if err != nil {
		return err
	}
	return trainer.Run(ctx)
}

func newNeighborsCmd() *cobra.Command {
	var vectorsPath string
	var k int

	cmd := &cobra.Command{
		Use:   "neighbors [word...]",
		Short: "Print the nearest words by cosine similarity from a text vector file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vecs, err := ml.LoadTextVectors(vectorsPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, word := range args {
				nbs, err := vecs.Nearest(word, k)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n", word)
				for _, nb := range nbs {
					fmt.Fprintf(out, "  %-20s %.4f\n", nb.Word, nb.Similarity)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&vectorsPath, "vectors", "vectors.txt", "Text vector file written by train")
	cmd.Flags().IntVarP(&k, "top", "k", 10, "Number of neighbours to print")
	return cmd
}
