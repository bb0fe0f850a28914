package ml

import (
	"math"

	"github.com/b0tShaman/glove-go/data"
	"gonum.org/v1/gonum/floats"
)

// worker trains on one partition of the co-occurrence file per epoch.
// It shares Params with every other worker and never locks.
type worker struct {
	id     int
	cfg    TrainingConfig
	params *Params
	opt    *AdaGrad
}

type recordStatus int

const (
	recordTrained recordStatus = iota
	recordMalformed
	recordNonFinite
)

// workerResult is the per-epoch tally of one worker, summed by the trainer after the join.
type workerResult struct {
	Loss      float64
	Records   int64 // records consumed from the file, malformed or not
	Skipped   int64 // records dropped for a non-finite residual
	Recovered int   // embedding or bias updates suppressed inside AdaGrad
}

func newWorker(id int, cfg TrainingConfig, p *Params) *worker {
	return &worker{
		id:     id,
		cfg:    cfg,
		params: p,
		opt:    NewAdaGrad(cfg.LearningRate, p.Dim),
	}
}

// run processes up to part.Count records from part.Offset on its own file handle.
// A read error or EOF ends the partition early without failing it.
func (wk *worker) run(part Partition) (workerResult, error) {
	var res workerResult

	rr, err := data.OpenRecords(wk.cfg.InputFile, part.Offset)
	if err != nil {
		return res, err
	}
	defer rr.Close()

	for a := int64(0); a < part.Count; a++ {
		rec, err := rr.Next()
		if err != nil {
			break
		}
		res.Records++

		loss, status, recovered := wk.trainRecord(rec)
		switch status {
		case recordTrained:
			res.Loss += loss
			res.Recovered += recovered
		case recordNonFinite:
			res.Skipped++
		}
	}
	return res, nil
}

// trainRecord computes the weighted residual for rec and applies the AdaGrad step.
// Ids outside 1..V are malformed and leave Params untouched.
func (wk *worker) trainRecord(rec data.Record) (loss float64, status recordStatus, recovered int) {
	p := wk.params
	if !rec.Valid() || int(rec.Word1) > p.VocabSize || int(rec.Word2) > p.VocabSize {
		return 0, recordMalformed, 0
	}

	d := p.Dim
	w := p.W.data
	l1 := p.WordRow(rec.Word1)
	l2 := p.ContextRow(rec.Word2)

	// 1. Residual: w·c + b_w + b_c - log(x)
	diff := floats.Dot(w[l1:l1+d], w[l2:l2+d])
	diff += w[l1+d] + w[l2+d] - math.Log(rec.Val)

	// 2. Weighting function
	fdiff := diff
	if rec.Val <= wk.cfg.XMax {
		fdiff = math.Pow(rec.Val/wk.cfg.XMax, wk.cfg.Alpha) * diff
	}
	if !finite(diff) || !finite(fdiff) {
		return 0, recordNonFinite, 0
	}

	loss = 0.5 * fdiff * diff
	recovered = wk.opt.Step(w, p.G.data, l1, l2, fdiff)
	return loss, recordTrained, recovered
}
