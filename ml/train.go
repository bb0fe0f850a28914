package ml

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/b0tShaman/glove-go/data"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type trainerState int

const (
	stateIdle trainerState = iota
	stateInitialized
	stateRunning
	stateFinished
)

// Trainer owns the parameter store and runs the epochs. Workers are created once and
// reused; their goroutines are spawned per epoch and joined before the loss is summed,
// so no worker of epoch k+1 starts while one of epoch k is still running.
type Trainer struct {
	cfg     TrainingConfig
	log     *logrus.Entry
	params  *Params
	saver   *Saver
	workers []*worker
	total   int64 // records in the input file
	state   trainerState
}

// NewTrainer validates cfg, sizes the vocabulary and input, and initialises Params.
func NewTrainer(cfg TrainingConfig, log *logrus.Entry) (*Trainer, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Trainer{cfg: cfg, log: log, state: stateIdle}

	vocabSize, err := data.CountVocab(cfg.VocabFile)
	if err != nil {
		return nil, err
	}
	t.total, err = data.CountRecords(cfg.InputFile)
	if err != nil {
		return nil, err
	}
	log.Infof("Read %d lines.", t.total)

	log.Trace("Initializing parameters...")
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	t.params, err = NewParams(vocabSize, cfg.VectorSize, rng)
	if err != nil {
		return nil, err
	}
	if cfg.InitFile != "" {
		if err := t.params.LoadBinary(cfg.InitFile, cfg.InitGradsqFile); err != nil {
			return nil, err
		}
		log.Debugf("resumed parameters from %s", cfg.InitFile)
	}
	log.Trace("done.")
	log.Debugf("vocab size: %d", vocabSize)
	log.Debug(cfg.String())

	t.workers = make([]*worker, cfg.Threads)
	for i := range t.workers {
		t.workers[i] = newWorker(i, cfg, t.params)
	}
	t.saver = NewSaver(cfg, log)
	t.state = stateInitialized
	return t, nil
}

func (t *Trainer) Params() *Params { return t.params }

// Run trains for cfg.Iterations epochs, checkpointing every cfg.CheckpointEvery epochs,
// then writes the final parameters. A failed checkpoint aborts the remaining epochs.
//
// ctx is only consulted between epochs. When it is cancelled the parameters of the last
// completed epoch are saved as the final result and ctx's error is returned.
func (t *Trainer) Run(ctx context.Context) error {
	if t.state != stateInitialized {
		return errors.New("trainer is not in the initialized state")
	}
	t.state = stateRunning
	defer func() { t.state = stateFinished }()

	start := time.Now()
	t.log.Info("TRAINING MODEL")

	for epoch := 1; epoch <= t.cfg.Iterations; epoch++ {
		if err := ctx.Err(); err != nil {
			t.log.Warnf("interrupted before iter %03d, saving model", epoch)
			if serr := t.saver.Save(t.params, 0); serr != nil {
				return serr
			}
			return err
		}

		st, err := t.runEpoch(ctx, epoch)
		if err != nil {
			return errors.Wrapf(err, "iter %03d", epoch)
		}
		t.log.WithFields(logrus.Fields{
			"elapsed": time.Since(start).Round(time.Millisecond),
		}).Infof("iter: %03d, cost: %f", epoch, st.Cost)

		if t.cfg.CheckpointEvery > 0 && epoch%t.cfg.CheckpointEvery == 0 {
			t.log.Infof("saving intermediate parameters for iter %03d", epoch)
			if err := t.saver.Save(t.params, epoch); err != nil {
				return errors.Wrapf(err, "checkpoint iter %03d", epoch)
			}
		}
	}
	return t.saver.Save(t.params, 0)
}

// epochStats is the joined tally of every worker for one epoch.
type epochStats struct {
	Cost      float64 // mean loss per record in the file
	Read      int64   // records actually read by the workers
	Skipped   int64
	Recovered int
}

// runEpoch fans out one goroutine per partition and sums the workers' results.
func (t *Trainer) runEpoch(ctx context.Context, epoch int) (epochStats, error) {
	var st epochStats
	parts := Partitions(t.total, t.cfg.Threads)
	results := make([]workerResult, len(parts))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Threads)
	for i, part := range parts {
		t.log.Tracef("iter %03d worker %d: records [%d, +%d) at byte %d", epoch, i, part.Start, part.Count, part.Offset)
		g.Go(func() error {
			res, err := t.workers[i].run(part)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return st, err
	}

	var totalLoss float64
	for _, res := range results {
		totalLoss += res.Loss
		st.Read += res.Records
		st.Skipped += res.Skipped
		st.Recovered += res.Recovered
	}
	if st.Read != t.total {
		t.log.Warnf("iter %03d: workers read %d of %d records", epoch, st.Read, t.total)
	}
	if st.Skipped > 0 || st.Recovered > 0 {
		t.log.Debugf("iter %03d: skipped %d non-finite records, suppressed %d non-finite updates", epoch, st.Skipped, st.Recovered)
	}
	if t.total > 0 {
		st.Cost = totalLoss / float64(t.total)
	}
	return st, nil
}
