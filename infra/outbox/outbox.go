// Package outbox persists view finalization events until they have been
// published. It is the hand-off between the release path, which must not
// block on a broker, and the broadcaster job.
package outbox

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"weakgate/infra/sequence"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

type Record struct {
	State       State
	Retries     uint32
	LastAttempt int64
	// Seq orders finalizations across restarts.
	Seq         uint64
	Payload     []byte
}

const recordHeader = 1 + 4 + 8 + 8

var errShortRecord = errors.New("outbox: short record")

// binary encoding: [state:1][retries:4][lastAttempt:8][seq:8][payload]
func encodeRecord(r Record) []byte {
	buf := make([]byte, recordHeader+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	binary.BigEndian.PutUint64(buf[13:21], r.Seq)
	copy(buf[recordHeader:], r.Payload)
	return buf
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) < recordHeader {
		return Record{}, errShortRecord
	}
	return Record{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Seq:         binary.BigEndian.Uint64(b[13:21]),
		Payload:     append([]byte(nil), b[recordHeader:]...),
	}, nil
}

// -------------------- Outbox --------------------

type Outbox struct {
	db *pebble.DB

	// putMu keeps the persisted sequence in step with the records
	putMu sync.Mutex
	seq   *sequence.Sequencer
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open outbox %s", dir)
	}
	last, err := loadSeq(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Outbox{db: db, seq: sequence.New(last)}, nil
}

func loadSeq(db *pebble.DB) (uint64, error) {
	val, closer, err := db.Get([]byte(seqKey))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "outbox load seq")
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, errShortRecord
	}
	return binary.BigEndian.Uint64(val), nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// PutNew records a new event for a view under the next finalization
// sequence, which build renders into the payload. The record and the
// sequence are committed together. It does not fsync; pebble's own WAL
// makes it durable on the next synced write or clean close.
func (o *Outbox) PutNew(viewID uint64, build func(seq uint64) ([]byte, error)) (uint64, error) {
	o.putMu.Lock()
	defer o.putMu.Unlock()

	seq := o.seq.Current() + 1
	payload, err := build(seq)
	if err != nil {
		return 0, err
	}

	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	rec := Record{State: StateNew, Seq: seq, Payload: payload}

	b := o.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyFor(viewID), encodeRecord(rec), nil); err != nil {
		return 0, errors.Wrap(err, "outbox put")
	}
	if err := b.Set([]byte(seqKey), seqBuf[:], nil); err != nil {
		return 0, errors.Wrap(err, "outbox put")
	}
	if err := b.Commit(pebble.NoSync); err != nil {
		return 0, errors.Wrap(err, "outbox put")
	}
	o.seq.Next()
	return seq, nil
}

// LastSeq returns the sequence of the most recent PutNew, including those
// from earlier runs.
func (o *Outbox) LastSeq() uint64 {
	return o.seq.Current()
}

// MarkSent records a publish attempt.
func (o *Outbox) MarkSent(viewID uint64) error {
	return o.update(viewID, func(r *Record) {
		r.State = StateSent
		r.Retries++
		r.LastAttempt = time.Now().UnixNano()
	})
}

// MarkAcked removes the event; the broker has it.
func (o *Outbox) MarkAcked(viewID uint64) error {
	return errors.Wrap(o.db.Delete(keyFor(viewID), pebble.Sync), "outbox ack")
}

func (o *Outbox) update(viewID uint64, fn func(*Record)) error {
	rec, err := o.Get(viewID)
	if err != nil {
		return err
	}
	fn(&rec)
	return errors.Wrap(o.db.Set(keyFor(viewID), encodeRecord(rec), pebble.Sync), "outbox update")
}

// Get returns the current record for a view.
func (o *Outbox) Get(viewID uint64) (Record, error) {
	val, closer, err := o.db.Get(keyFor(viewID))
	if err != nil {
		return Record{}, errors.Wrapf(err, "outbox get %d", viewID)
	}
	defer closer.Close()

	return decodeRecord(val)
}

// -------------------- Scan --------------------

// ScanPending calls fn for every record that has not been acknowledged,
// in view ID order. This is used by the broadcaster.
func (o *Outbox) ScanPending(fn func(viewID uint64, rec Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return errors.Wrap(err, "outbox scan")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		if rec.State == StateAcked {
			continue
		}

		id, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(id, rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// -------------------- Helpers --------------------

const (
	keyPrefix = "view/"
	seqKey    = "meta/seq"
)

func keyFor(viewID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, viewID))
}

func parseKey(b []byte) (uint64, error) {
	id, err := strconv.ParseUint(string(bytes.TrimPrefix(b, []byte(keyPrefix))), 10, 64)
	return id, errors.Wrapf(err, "outbox key %q", b)
}
