// Package journal is an append-only, segmented log of view lifecycle
// records. Each frame is
//
//	[type:1][seq:8][time:8][len:4][payload][crc:4]
//
// with big-endian integers and an IEEE CRC32 over header and payload.
// Replay walks every segment in order and returns the highest sequence
// seen, so view IDs are never reissued after a restart.
package journal
