package ml

import "github.com/b0tShaman/glove-go/data"

// Partition is the slice of the co-occurrence file handled by one worker.
type Partition struct {
	Start  int64 // first record index
	Count  int64 // records to process
	Offset int64 // byte offset the worker seeks to
}

// Partitions splits total records across workers. The first workers-1 partitions get
// total/workers records and the last one also takes the remainder.
//
// Offsets are total/workers*i records, computed per worker rather than accumulated
// from the counts before it. Workers stop early at EOF if the file is shorter than expected.
func Partitions(total int64, workers int) []Partition {
	if workers < 1 {
		workers = 1
	}
	per := total / int64(workers)
	parts := make([]Partition, workers)
	for i := range parts {
		start := per * int64(i)
		parts[i] = Partition{
			Start:  start,
			Count:  per,
			Offset: start * data.RecordSize,
		}
	}
	parts[workers-1].Count += total % int64(workers)
	return parts
}
