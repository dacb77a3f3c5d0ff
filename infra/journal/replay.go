package journal

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"weakgate/infra/log"
)

var ErrCorrupt = errors.New("journal: corrupt record")

type ReplayHandler func(*Record) error

// Replay calls fn for every record in dir, oldest first. A torn frame at
// the end of the newest non-empty segment is cut off so that later
// segments can follow it; a torn frame anywhere else is an error.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	segs, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	tail := -1
	for i := len(segs) - 1; i >= 0; i-- {
		st, err := os.Stat(segs[i].path)
		if err != nil {
			return 0, errors.Wrapf(err, "stat segment %s", segs[i].path)
		}
		if st.Size() > 0 {
			tail = i
			break
		}
	}

	for i, seg := range segs {
		lastSeq, err = replaySegment(seg.path, i == tail, lastSeq, fn)
		if err != nil {
			return lastSeq, err
		}
	}
	return lastSeq, nil
}

func replaySegment(path string, tail bool, lastSeq uint64, fn ReplayHandler) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return lastSeq, errors.Wrapf(err, "open segment %s", path)
	}
	defer f.Close()

	var valid int64
	r := bufio.NewReader(f)
	for {
		rec, err := readRecord(r)
		if err == io.EOF {
			return lastSeq, nil
		}
		if err == io.ErrUnexpectedEOF && tail {
			return lastSeq, truncateTorn(path, valid)
		}
		if err != nil {
			return lastSeq, errors.Wrapf(err, "segment %s", filepath.Base(path))
		}

		if rec.Seq <= lastSeq {
			return lastSeq, errors.Wrapf(ErrCorrupt, "non-monotonic seq %d", rec.Seq)
		}
		lastSeq = rec.Seq
		valid += frameSize(rec)

		if err := fn(rec); err != nil {
			return lastSeq, err
		}
	}
}

func truncateTorn(path string, size int64) error {
	log.Component("journal").
		WithField("segment", filepath.Base(path)).
		WithField("offset", size).
		Warn("truncating torn journal tail")
	if err := os.Truncate(path, size); err != nil {
		return errors.Wrapf(err, "truncate segment %s", filepath.Base(path))
	}
	return nil
}

func frameSize(r *Record) int64 {
	return int64(headerSize + len(r.Data) + 4)
}

func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	l := binary.BigEndian.Uint32(header[17:21])
	data := make([]byte, l+4)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	payload := data[:l]
	sum := binary.BigEndian.Uint32(data[l:])
	h := crc32.NewIEEE()
	_, _ = h.Write(header)
	_, _ = h.Write(payload)
	if h.Sum32() != sum {
		return nil, errors.Wrap(ErrCorrupt, "crc mismatch")
	}

	return &Record{
		Type: RecordType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: payload,
	}, nil
}
