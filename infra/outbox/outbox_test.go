package outbox

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Outbox {
	t.Helper()
	o, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func put(t *testing.T, o *Outbox, viewID uint64, payload string) uint64 {
	t.Helper()
	seq, err := o.PutNew(viewID, func(uint64) ([]byte, error) { return []byte(payload), nil })
	require.NoError(t, err)
	return seq
}

func TestRecordEncoding(t *testing.T) {
	in := Record{State: StateSent, Retries: 3, LastAttempt: 1234, Seq: 77, Payload: []byte(`{"v":1}`)}
	out, err := decodeRecord(encodeRecord(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeRecord([]byte{1, 2})
	assert.Error(t, err)
}

func TestOutboxLifecycle(t *testing.T) {
	o := openTest(t)

	put(t, o, 2, "two")
	put(t, o, 1, "one")

	var ids []uint64
	require.NoError(t, o.ScanPending(func(id uint64, rec Record) error {
		ids = append(ids, id)
		assert.Equal(t, StateNew, rec.State)
		return nil
	}))
	assert.Equal(t, []uint64{1, 2}, ids)

	require.NoError(t, o.MarkSent(1))
	rec, err := o.Get(1)
	require.NoError(t, err)
	assert.Equal(t, StateSent, rec.State)
	assert.Equal(t, uint32(1), rec.Retries)
	assert.Equal(t, "one", string(rec.Payload))

	require.NoError(t, o.MarkAcked(1))
	_, err = o.Get(1)
	assert.Error(t, err)

	ids = ids[:0]
	require.NoError(t, o.ScanPending(func(id uint64, _ Record) error {
		ids = append(ids, id)
		return nil
	}))
	assert.Equal(t, []uint64{2}, ids)
}

func TestParseKey(t *testing.T) {
	id, err := parseKey(keyFor(987654321))
	require.NoError(t, err)
	assert.Equal(t, uint64(987654321), id)

	_, err = parseKey([]byte("view/abc"))
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "NEW", StateNew.String())
	assert.Equal(t, "ACKED", StateAcked.String())
	assert.Equal(t, "UNKNOWN", State(9).String())
}

func TestSeqPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(dir)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), put(t, o, 5, "five"))
	assert.Equal(t, uint64(2), put(t, o, 3, "three"))
	require.NoError(t, o.MarkAcked(5))
	require.NoError(t, o.MarkAcked(3))
	require.NoError(t, o.Close())

	o, err = Open(dir)
	require.NoError(t, err)
	defer o.Close()
	assert.Equal(t, uint64(2), o.LastSeq())

	var rendered uint64
	seq, err := o.PutNew(9, func(seq uint64) ([]byte, error) {
		rendered = seq
		return []byte("nine"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
	assert.Equal(t, seq, rendered)

	rec, err := o.Get(9)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rec.Seq)
}

func TestPutNewBuildFailureKeepsSeq(t *testing.T) {
	o := openTest(t)
	_, err := o.PutNew(1, func(uint64) ([]byte, error) { return nil, errors.New("render") })
	assert.Error(t, err)
	assert.Zero(t, o.LastSeq())

	_, err = o.Get(1)
	assert.Error(t, err)
	assert.Equal(t, uint64(1), put(t, o, 1, "one"))
}

func TestScanSkipsSeqKey(t *testing.T) {
	o := openTest(t)
	put(t, o, 4, "four")

	n := 0
	require.NoError(t, o.ScanPending(func(uint64, Record) error {
		n++
		return nil
	}))
	assert.Equal(t, 1, n)
}
