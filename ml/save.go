package ml

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/b0tShaman/glove-go/data"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// maxRareWords bounds how many of the last (rarest) vocabulary rows feed the unknown-word vector.
const maxRareWords = 100

// Saver writes Params to the configured text and/or binary files.
//
// Every file of one save is first written to a temporary file next to its destination and
// only renamed into place once all of them were written, so an error while writing (a reserved
// word, a short vocabulary, a full disk) leaves no new or half-written output behind. The
// renames themselves happen one file at a time: if one fails, files renamed before it have
// already replaced their destinations. Overwriting is at-least-once, never partial per file.
type Saver struct {
	cfg TrainingConfig
	log *logrus.Entry
}

func NewSaver(cfg TrainingConfig, log *logrus.Entry) *Saver {
	return &Saver{cfg: cfg, log: log}
}

// OutputName returns the file name for prefix and ext. A positive epoch marks a
// checkpoint and is embedded zero-padded before the extension, e.g. vectors.007.txt.
func OutputName(prefix string, epoch int, ext string) string {
	if epoch <= 0 {
		return fmt.Sprintf("%s.%s", prefix, ext)
	}
	return fmt.Sprintf("%s.%03d.%s", prefix, epoch, ext)
}

// Save writes p. epoch > 0 writes a checkpoint, otherwise the final files.
func (s *Saver) Save(p *Params, epoch int) error {
	st := &staging{}
	defer st.abort()

	if s.cfg.Binary != BinaryText {
		if err := st.writeBinary(OutputName(s.cfg.SaveFile, epoch, "bin"), p.W); err != nil {
			return err
		}
		if s.cfg.SaveGradsq {
			if err := st.writeBinary(OutputName(s.cfg.GradsqFile, epoch, "bin"), p.G); err != nil {
				return err
			}
		}
	}
	if s.cfg.Binary != BinaryOnly {
		if err := s.writeText(st, p, epoch); err != nil {
			return err
		}
	}

	if err := st.commit(); err != nil {
		return err
	}
	for _, name := range st.names() {
		s.log.Debugf("wrote %s", name)
	}
	return nil
}

// writeText walks the vocabulary in lockstep with the rows of W.
func (s *Saver) writeText(st *staging, p *Params, epoch int) error {
	vs, err := data.OpenVocab(s.cfg.VocabFile)
	if err != nil {
		return err
	}
	defer vs.Close()

	fout, err := st.create(OutputName(s.cfg.SaveFile, epoch, "txt"))
	if err != nil {
		return err
	}
	var fgs *bufio.Writer
	if s.cfg.SaveGradsq {
		if fgs, err = st.create(OutputName(s.cfg.GradsqFile, epoch, "txt")); err != nil {
			return err
		}
	}

	V, d := p.VocabSize, p.Dim
	line := make([]byte, 0, 64*(2*d+2))
	for a := 0; a < V; a++ {
		word, ok := vs.Next()
		if !ok {
			if err := vs.Err(); err != nil {
				return errors.Wrapf(err, "read vocab file %s", s.cfg.VocabFile)
			}
			return errors.Wrapf(ErrShortVocab, "%s has %d words, want %d", s.cfg.VocabFile, a, V)
		}
		if word == data.UNK {
			return errors.Wrapf(ErrReservedWord, "vocab file %s line %d", s.cfg.VocabFile, a+1)
		}

		line = appendVector(line[:0], word, p.W.Row(a), p.W.Row(V+a), s.cfg.Model, d)
		if _, err := fout.Write(line); err != nil {
			return errors.Wrap(err, "write vectors")
		}
		if fgs != nil {
			line = appendVector(line[:0], word, p.G.Row(a), p.G.Row(V+a), ModelAll, d)
			if _, err := fgs.Write(line); err != nil {
				return errors.Wrap(err, "write gradsq")
			}
		}
	}

	if s.cfg.UnkVector {
		unkWord, unkCtx := unkVectors(p)
		line = appendVector(line[:0], data.UNK, unkWord, unkCtx, s.cfg.Model, d)
		if _, err := fout.Write(line); err != nil {
			return errors.Wrap(err, "write vectors")
		}
	}
	return nil
}

// unkVectors averages the word and context rows (bias included) of the last
// min(V, maxRareWords) vocabulary entries.
func unkVectors(p *Params) (word, ctx []float64) {
	V := p.VocabSize
	n := min(V, maxRareWords)
	word = make([]float64, p.Stride())
	ctx = make([]float64, p.Stride())
	scale := 1 / float64(n)
	for a := V - n; a < V; a++ {
		floats.AddScaled(word, scale, p.W.Row(a))
		floats.AddScaled(ctx, scale, p.W.Row(V+a))
	}
	return word, ctx
}

// appendVector formats one text line: the word then the fields selected by model.
// wordRow and ctxRow are full rows of length d+1.
func appendVector(dst []byte, word string, wordRow, ctxRow []float64, model OutputModel, d int) []byte {
	dst = append(dst, word...)
	switch model {
	case ModelAll:
		for _, v := range wordRow[:d+1] {
			dst = appendFloat(dst, v)
		}
		for _, v := range ctxRow[:d+1] {
			dst = appendFloat(dst, v)
		}
	case ModelWord:
		for _, v := range wordRow[:d] {
			dst = appendFloat(dst, v)
		}
	case ModelSum:
		for b := 0; b < d; b++ {
			dst = appendFloat(dst, wordRow[b]+ctxRow[b])
		}
	}
	return append(dst, '\n')
}

// appendFloat writes v with six decimals, spelling non-finite values as printf's %lf does.
func appendFloat(dst []byte, v float64) []byte {
	dst = append(dst, ' ')
	switch {
	case math.IsNaN(v):
		return append(dst, "nan"...)
	case math.IsInf(v, 1):
		return append(dst, "inf"...)
	case math.IsInf(v, -1):
		return append(dst, "-inf"...)
	}
	return strconv.AppendFloat(dst, v, 'f', 6, 64)
}

// -------- STAGED OUTPUT -------- //

// outputPerm is the mode of newly created output files, before the umask.
const outputPerm os.FileMode = 0644

type stagedFile struct {
	final string
	f     *os.File
	w     *bufio.Writer
}

type staging struct {
	files     []*stagedFile
	committed bool
}

func (st *staging) create(final string) (*bufio.Writer, error) {
	f, err := os.CreateTemp(filepath.Dir(final), "."+filepath.Base(final)+".*.tmp")
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open file %s", final)
	}
	// CreateTemp uses 0600. Keep the mode of a file being replaced.
	perm := outputPerm
	if info, err := os.Stat(final); err == nil && info.Mode().IsRegular() {
		perm = info.Mode().Perm()
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, errors.Wrapf(err, "chmod %s", final)
	}
	sf := &stagedFile{final: final, f: f, w: bufio.NewWriterSize(f, 1<<16)}
	st.files = append(st.files, sf)
	return sf.w, nil
}

// writeBinary dumps m row by row as little-endian float64.
func (st *staging) writeBinary(final string, m *Matrix) error {
	w, err := st.create(final)
	if err != nil {
		return err
	}
	for i := 0; i < m.rows; i++ {
		if err := binary.Write(w, binary.LittleEndian, m.Row(i)); err != nil {
			return errors.Wrapf(err, "write %s", final)
		}
	}
	return nil
}

// commit flushes, closes and renames every staged file into place.
func (st *staging) commit() error {
	for _, sf := range st.files {
		if err := sf.w.Flush(); err != nil {
			return errors.Wrapf(err, "flush %s", sf.final)
		}
		if err := sf.f.Close(); err != nil {
			return errors.Wrapf(err, "close %s", sf.final)
		}
	}
	for _, sf := range st.files {
		if err := os.Rename(sf.f.Name(), sf.final); err != nil {
			return errors.Wrapf(err, "rename %s", sf.final)
		}
	}
	st.committed = true
	return nil
}

// abort removes any temporary files left by an unfinished save.
func (st *staging) abort() {
	if st.committed {
		return
	}
	for _, sf := range st.files {
		sf.f.Close()
		os.Remove(sf.f.Name())
	}
}

func (st *staging) names() []string {
	names := make([]string, len(st.files))
	for i, sf := range st.files {
		names[i] = sf.final
	}
	return names
}
