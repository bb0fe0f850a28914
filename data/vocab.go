package data

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
)

// UNK is the token reserved for the synthesized unknown-word vector.
// A vocabulary must never contain it.
const UNK = "<unk>"

// CountVocab returns the vocabulary size of the file at path, defined as the
// number of newline bytes it contains (one "word count" entry per line).
func CountVocab(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open vocab file %s", path)
	}
	defer f.Close()

	n := 0
	buf := make([]byte, 1<<16)
	for {
		c, err := f.Read(buf)
		n += bytes.Count(buf[:c], []byte{'\n'})
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, errors.Wrapf(err, "read vocab file %s", path)
		}
	}
}

// VocabScanner walks a "word count" vocabulary in file order.
type VocabScanner struct {
	f  *os.File
	sc *bufio.Scanner
}

func OpenVocab(path string) (*VocabScanner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open vocab file %s", path)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1024*1024)
	sc.Split(bufio.ScanWords)
	return &VocabScanner{f: f, sc: sc}, nil
}

// Next returns the next word and consumes its frequency token.
// ok is false once the vocabulary is exhausted or unreadable; see Err.
func (v *VocabScanner) Next() (word string, ok bool) {
	if !v.sc.Scan() {
		return "", false
	}
	word = v.sc.Text()
	// The frequency is irrelevant here, but it has to be eaten to stay in step.
	v.sc.Scan()
	return word, true
}

func (v *VocabScanner) Err() error {
	return v.sc.Err()
}

func (v *VocabScanner) Close() error {
	return v.f.Close()
}
