package data

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
)

// RecordSize is the on-disk size of one Record: two int32 ids and a float64 value.
const RecordSize = 16

// Record is one entry of the shuffled co-occurrence file.
// Word ids are 1-based; a non-positive id marks a malformed record.
type Record struct {
	Word1 int32
	Word2 int32
	Val   float64
}

// Valid reports whether both word ids are usable.
func (r Record) Valid() bool {
	return r.Word1 >= 1 && r.Word2 >= 1
}

// CountRecords returns the number of whole records in the file at path.
// A trailing partial record is not counted.
func CountRecords(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.Wrapf(err, "stat cooccurrence file %s", path)
	}
	return info.Size() / RecordSize, nil
}

// RecordReader streams records sequentially from a byte offset.
type RecordReader struct {
	f   *os.File
	r   *bufio.Reader
	buf [RecordSize]byte
}

// OpenRecords opens path and positions the reader at offset bytes.
// Each caller gets its own file handle.
func OpenRecords(path string, offset int64) (*RecordReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open cooccurrence file %s", path)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "seek cooccurrence file %s to %d", path, offset)
	}
	return &RecordReader{
		f: f,
		r: bufio.NewReaderSize(f, 1<<16),
	}, nil
}

// Next decodes the next record. It returns io.EOF once no full record remains.
func (rr *RecordReader) Next() (Record, error) {
	if _, err := io.ReadFull(rr.r, rr.buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Record{}, io.EOF
		}
		return Record{}, err
	}
	return decodeRecord(rr.buf[:]), nil
}

func (rr *RecordReader) Close() error {
	return rr.f.Close()
}

func decodeRecord(b []byte) Record {
	return Record{
		Word1: int32(binary.LittleEndian.Uint32(b[0:4])),
		Word2: int32(binary.LittleEndian.Uint32(b[4:8])),
		Val:   math.Float64frombits(binary.LittleEndian.Uint64(b[8:16])),
	}
}

// WriteRecords encodes recs to w in the layout RecordReader expects.
func WriteRecords(w io.Writer, recs []Record) error {
	bw := bufio.NewWriter(w)
	var buf [RecordSize]byte
	for _, rec := range recs {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(rec.Word1))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(rec.Word2))
		binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(rec.Val))
		if _, err := bw.Write(buf[:]); err != nil {
			return errors.Wrap(err, "write cooccurrence record")
		}
	}
	return errors.Wrap(bw.Flush(), "flush cooccurrence records")
}

// WriteRecordsFile creates (or truncates) path and writes recs to it.
func WriteRecordsFile(path string, recs []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create cooccurrence file %s", path)
	}
	if err := WriteRecords(f, recs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
