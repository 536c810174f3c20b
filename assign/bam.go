package assign

import (
	"io"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"

	"github.com/biofrost/gofrost/emabund"
)

// Recorder is satisfied by *bam.Reader.
type Recorder interface {
	Read() (*sam.Record, error)
}

const skipFlags = sam.Unmapped | sam.QCFail | sam.Supplementary

// ReadBAM assigns each mapped read to the reference of every primary and
// secondary alignment. Secondary alignments are what make a read ambiguous, so
// they are kept even though their MAPQ is usually 0.
func ReadBAM(br Recorder, opts Options) ([]emabund.Assignment, error) {
	if b, ok := br.(*bam.Reader); ok {
		b.Omit(bam.AllVariableLengthData)
	}
	var as []emabund.Assignment
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rec.Flags&skipFlags != 0 || rec.Ref == nil {
			continue
		}
		if rec.Flags&sam.Secondary == 0 && int(rec.MapQ) < opts.MinMapQ {
			continue
		}
		if !opts.Regions.Overlaps(rec.Ref.Name(), rec.Pos, rec.End()) {
			continue
		}
		as = append(as, emabund.Assignment{Read: rec.Name, Category: rec.Ref.Name()})
	}
	return as, nil
}
