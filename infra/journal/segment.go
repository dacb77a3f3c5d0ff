package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

const (
	segmentPattern = "segment-*.wal"
	segmentFormat  = "segment-%06d.wal"
)

type segment struct {
	file   *os.File
	offset int64
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf(segmentFormat, index))
}

func openSegment(dir string, index int) (*segment, error) {
	f, err := os.OpenFile(segmentPath(dir, index), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{file: f, offset: st.Size()}, nil
}

func (s *segment) append(b []byte) error {
	n, err := s.file.Write(b)
	s.offset += int64(n)
	return err
}

func (s *segment) sync() error {
	return s.file.Sync()
}

func (s *segment) close() error {
	return s.file.Close()
}

type segmentFile struct {
	index int
	path  string
}

// listSegments returns the segments in dir ordered by index.
func listSegments(dir string) ([]segmentFile, error) {
	paths, err := filepath.Glob(filepath.Join(dir, segmentPattern))
	if err != nil {
		return nil, errors.Wrap(err, "list journal segments")
	}
	segs := make([]segmentFile, 0, len(paths))
	for _, p := range paths {
		var index int
		if _, err := fmt.Sscanf(filepath.Base(p), segmentFormat, &index); err != nil {
			continue
		}
		segs = append(segs, segmentFile{index: index, path: p})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].index < segs[j].index })
	return segs, nil
}

// nextSegmentIndex picks the segment Open appends to: the newest one if it
// is still empty, otherwise a fresh one after it. Appends never land
// behind a possibly torn frame.
func nextSegmentIndex(dir string) (int, error) {
	segs, err := listSegments(dir)
	if err != nil {
		return 0, err
	}
	if len(segs) == 0 {
		return 0, nil
	}
	newest := segs[len(segs)-1]
	st, err := os.Stat(newest.path)
	if err != nil {
		return 0, errors.Wrapf(err, "stat segment %s", newest.path)
	}
	if st.Size() == 0 {
		return newest.index, nil
	}
	return newest.index + 1, nil
}
