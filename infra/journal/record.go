package journal

import "time"

type RecordType uint8

const (
	RecordOpen RecordType = iota + 1
)

func (t RecordType) String() string {
	switch t {
	case RecordOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}

const headerSize = 1 + 8 + 8 + 4
