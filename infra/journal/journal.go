package journal

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"sync"

	"github.com/pkg/errors"
)

type Config struct {
	Dir         string `yaml:"dir"`
	SegmentSize int64  `yaml:"segment_size"`
	// Sync fsyncs every append.
	Sync bool `yaml:"sync"`
}

// Journal is safe for concurrent Append calls.
type Journal struct {
	mu       sync.Mutex
	dir      string
	segSize  int64
	sync     bool
	current  *segment
	segIndex int
	lastSeq  uint64
}

// Open opens the journal for appending after the existing segments. Call
// Replay first when the previous contents matter.
func Open(cfg Config) (*Journal, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create journal dir %s", cfg.Dir)
	}

	index, err := nextSegmentIndex(cfg.Dir)
	if err != nil {
		return nil, err
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, errors.Wrap(err, "open journal segment")
	}

	return &Journal{
		dir:      cfg.Dir,
		segSize:  cfg.SegmentSize,
		sync:     cfg.Sync,
		current:  seg,
		segIndex: index,
	}, nil
}

// Append writes r. Sequences must be strictly increasing.
func (j *Journal) Append(r *Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if r.Seq <= j.lastSeq {
		return errors.Errorf("journal: non-monotonic seq %d after %d", r.Seq, j.lastSeq)
	}

	if err := j.current.append(encode(r)); err != nil {
		return errors.Wrap(err, "journal append")
	}
	if j.sync {
		if err := j.current.sync(); err != nil {
			return errors.Wrap(err, "journal sync")
		}
	}
	j.lastSeq = r.Seq

	if j.current.offset >= j.segSize {
		return j.rotate()
	}
	return nil
}

// Resume sets the floor for the next appended sequence, normally the
// value returned by Replay.
func (j *Journal) Resume(lastSeq uint64) {
	j.mu.Lock()
	j.lastSeq = lastSeq
	j.mu.Unlock()
}

func (j *Journal) rotate() error {
	_ = j.current.close()
	j.segIndex++

	seg, err := openSegment(j.dir, j.segIndex)
	if err != nil {
		return errors.Wrap(err, "journal rotate")
	}
	j.current = seg
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.current.close()
}

func encode(r *Record) []byte {
	n := uint32(len(r.Data))
	buf := make([]byte, headerSize+n+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], n)
	copy(buf[headerSize:], r.Data)

	sum := crc32.ChecksumIEEE(buf[:headerSize+n])
	binary.BigEndian.PutUint32(buf[headerSize+n:], sum)
	return buf
}
