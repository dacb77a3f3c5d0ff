package service

import (
	"weakgate/infra/journal"
	"weakgate/infra/log"
)

/*
ReplayJournal returns the last view ID recorded in the journal.

IMPORTANT:
- This MUST run before the sequencer is created
- Views themselves do not survive a restart; only their IDs are reserved
*/
func ReplayJournal(dir string) (uint64, error) {
	opened := 0
	lastID, err := journal.Replay(dir, func(rec *journal.Record) error {
		if rec.Type == journal.RecordOpen {
			opened++
		}
		return nil
	})
	if err != nil {
		return lastID, err
	}

	log.Component("replay").WithField("views", opened).
		WithField(log.KeySeq, lastID).
		Info("journal replay completed")
	return lastID, nil
}
