package ml

import (
	"bufio"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var ErrUnknownWord = errors.New("word not in vectors")

// Vectors is a text vector file loaded for lookups.
type Vectors struct {
	Words []string
	index map[string]int
	vecs  *mat.Dense
}

// Neighbor is one result of a similarity query.
type Neighbor struct {
	Word       string
	Similarity float64
}

// LoadTextVectors reads "word v1 v2 ..." lines, as written by Saver in text mode.
// Every line must have the same number of fields.
func LoadTextVectors(path string) (*Vectors, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open vectors %s", path)
	}
	defer f.Close()

	var words []string
	var flat []float64
	dim := -1

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for lineNo := 1; sc.Scan(); lineNo++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if dim < 0 {
			dim = len(fields) - 1
		}
		if len(fields)-1 != dim || dim == 0 {
			return nil, errors.Errorf("%s line %d: %d values, want %d", path, lineNo, len(fields)-1, dim)
		}
		for _, s := range fields[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "%s line %d", path, lineNo)
			}
			flat = append(flat, v)
		}
		words = append(words, fields[0])
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "read vectors %s", path)
	}
	if len(words) == 0 {
		return nil, errors.Errorf("%s has no vectors", path)
	}

	v := &Vectors{
		Words: words,
		index: make(map[string]int, len(words)),
		vecs:  mat.NewDense(len(words), dim, flat),
	}
	for i, w := range words {
		v.index[w] = i
	}
	return v, nil
}

func (v *Vectors) Vector(word string) ([]float64, bool) {
	i, ok := v.index[word]
	if !ok {
		return nil, false
	}
	return v.vecs.RawRowView(i), true
}

// Nearest returns the k words most cosine-similar to word, best first, excluding word itself.
func (v *Vectors) Nearest(word string, k int) ([]Neighbor, error) {
	q, ok := v.Vector(word)
	if !ok {
		return nil, errors.Wrap(ErrUnknownWord, word)
	}
	qNorm := floats.Norm(q, 2)

	all := make([]Neighbor, 0, len(v.Words)-1)
	for i, w := range v.Words {
		if w == word {
			continue
		}
		row := v.vecs.RawRowView(i)
		denom := qNorm * floats.Norm(row, 2)
		sim := 0.0
		if denom > 0 {
			sim = floats.Dot(q, row) / denom
		}
		all = append(all, Neighbor{Word: w, Similarity: sim})
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Similarity > all[j].Similarity
	})
	if k > 0 && k < len(all) {
		all = all[:k]
	}
	return all, nil
}
