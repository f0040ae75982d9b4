package wal

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/stratadb/strata/pkg/strataerr"
)

// Entry is one recovered WAL record paired with the segment it came
// from, in replay order.
type Entry struct {
	SegmentIndex uint32
	Payload      TransactionPayload
}

// Replay scans every segment in dir in segment_index order and
// decodes each TxnPayload record, handing it to fn in order.
//
// Recovery rule: in the tail (highest-indexed) segment, the first
// invalid record truncates that segment at the offset where the bad
// record began and replay ends without an error, treating it as a
// write torn by a crash; records after it are not examined. An invalid
// record in any earlier, closed segment is reported as a Corruption
// error instead.
func Replay(dir string, expectUUID uuid.UUID, maxEntrySize int, fn func(Entry) error) error {
	indices, err := listSegmentIndices(dir)
	if err != nil {
		return err
	}

	for i, idx := range indices {
		isTail := i == len(indices)-1
		if err := replaySegment(dir, idx, expectUUID, maxEntrySize, isTail, fn); err != nil {
			return err
		}
	}
	return nil
}

func replaySegment(dir string, idx uint32, expectUUID uuid.UUID, maxEntrySize int, isTail bool, fn func(Entry) error) error {
	path := filepath.Join(dir, SegmentFileName(idx))
	f, err := os.Open(path)
	if err != nil {
		return strataerr.Wrap(strataerr.Io, err, "open wal segment %s for replay", path)
	}
	defer f.Close()

	headerBuf := make([]byte, segmentHeaderSize)
	if _, err := io.ReadFull(f, headerBuf); err != nil {
		return strataerr.Wrap(strataerr.Corruption, err, "read wal segment header %s", path)
	}
	header, err := decodeSegmentHeader(headerBuf)
	if err != nil {
		return err
	}
	if header.DatabaseUUID != expectUUID {
		return strataerr.New(strataerr.Corruption, "wal segment %s belongs to a different database", path)
	}

	offset := int64(segmentHeaderSize)
	for {
		rec, err := readFrame(f, maxEntrySize)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if isTail {
				// Corruption at the tail is the crash signature: stop
				// reading this segment (and the scan, since it is the
				// last one) without propagating an error.
				return truncateSegment(path, offset)
			}
			return strataerr.Wrap(strataerr.Corruption, err, "corrupt wal record in closed segment %s", path)
		}

		if rec.Type == RecordTxnPayload {
			payload, decErr := DecodePayload(rec.Payload)
			if decErr != nil {
				if isTail {
					return truncateSegment(path, offset)
				}
				return strataerr.Wrap(strataerr.Corruption, decErr, "corrupt wal payload in closed segment %s", path)
			}
			if err := fn(Entry{SegmentIndex: idx, Payload: payload}); err != nil {
				return err
			}
		}

		pos, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return strataerr.Wrap(strataerr.Io, err, "seek wal segment %s", path)
		}
		offset = pos
	}
}

// truncateSegment truncates the segment at validOffset, discarding the
// trailing bytes of a frame that never finished writing before a
// crash.
func truncateSegment(path string, validOffset int64) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return strataerr.Wrap(strataerr.Io, err, "open wal segment %s for truncation", path)
	}
	defer f.Close()
	if err := f.Truncate(validOffset); err != nil {
		return strataerr.Wrap(strataerr.Io, err, "truncate wal segment %s", path)
	}
	return nil
}
