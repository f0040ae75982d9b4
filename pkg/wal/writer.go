package wal

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stratadb/strata/pkg/strataerr"
)

// Writer owns the active (tail) segment and appends committed
// transaction payloads to it, rotating to a new segment once the
// active one crosses Config.SegmentSize and gating fsync by
// Config.Mode.
type Writer struct {
	mu sync.Mutex

	dir          string
	databaseUUID uuid.UUID
	cfg          Config
	log          zerolog.Logger

	file         *os.File
	segmentIndex uint32
	segmentBytes int64

	sinceSync      int
	lastSyncAt     time.Time
}

// OpenWriter opens (or creates) the WAL directory and positions the
// writer at the end of the highest-indexed segment, creating the
// first segment if the directory is empty.
func OpenWriter(dir string, databaseUUID uuid.UUID, cfg Config, log zerolog.Logger) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, strataerr.Wrap(strataerr.Io, err, "create wal dir %s", dir)
	}

	indices, err := listSegmentIndices(dir)
	if err != nil {
		return nil, err
	}

	w := &Writer{dir: dir, databaseUUID: databaseUUID, cfg: cfg, log: log, lastSyncAt: time.Now()}

	if len(indices) == 0 {
		f, err := createSegment(dir, 0, databaseUUID)
		if err != nil {
			return nil, err
		}
		w.file = f
		w.segmentIndex = 0
		w.segmentBytes = segmentHeaderSize
		return w, nil
	}

	last := indices[len(indices)-1]
	path := filepath.Join(dir, SegmentFileName(last))
	f, header, err := openSegmentForAppend(path)
	if err != nil {
		return nil, err
	}
	if header.DatabaseUUID != databaseUUID {
		f.Close()
		return nil, strataerr.New(strataerr.Corruption, "wal segment %s belongs to a different database", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, strataerr.Wrap(strataerr.Io, err, "stat wal segment %s", path)
	}
	w.file = f
	w.segmentIndex = last
	w.segmentBytes = info.Size()
	return w, nil
}

func listSegmentIndices(dir string) ([]uint32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, strataerr.Wrap(strataerr.Io, err, "list wal dir %s", dir)
	}
	var indices []uint32
	for _, e := range entries {
		var idx uint32
		if _, err := fscanSegmentName(e.Name(), &idx); err == nil {
			indices = append(indices, idx)
		}
	}
	sortUint32s(indices)
	return indices, nil
}

// Append writes one committed transaction's payload as a single WAL
// record, rotating the segment first if it would overflow, and
// fsyncing according to the configured durability mode.
func (w *Writer) Append(payload TransactionPayload) error {
	if w.cfg.Mode == None {
		return nil
	}

	body, err := EncodePayload(payload)
	if err != nil {
		return strataerr.Wrap(strataerr.Internal, err, "encode wal payload")
	}
	if len(body) > w.cfg.MaxEntrySize {
		return strataerr.New(strataerr.LimitExceeded, "wal payload %d exceeds max entry size %d", len(body), w.cfg.MaxEntrySize)
	}
	frame := encodeFrame(Record{Type: RecordTxnPayload, Payload: body})

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.segmentBytes+int64(len(frame)) > w.cfg.SegmentSize {
		if err := w.rotateLocked(); err != nil {
			return err
		}
	}

	if _, err := w.file.Write(frame); err != nil {
		return strataerr.Wrap(strataerr.Io, err, "append wal record")
	}
	w.segmentBytes += int64(len(frame))
	w.sinceSync++

	return w.maybeSyncLocked()
}

func (w *Writer) maybeSyncLocked() error {
	switch w.cfg.Mode {
	case Always:
		return w.syncLocked()
	case Standard:
		elapsed := time.Since(w.lastSyncAt).Milliseconds()
		if w.sinceSync >= w.cfg.BatchSize || elapsed >= w.cfg.IntervalMillis {
			return w.syncLocked()
		}
	}
	return nil
}

func (w *Writer) syncLocked() error {
	if err := w.file.Sync(); err != nil {
		return strataerr.Wrap(strataerr.Io, err, "fsync wal segment")
	}
	w.sinceSync = 0
	w.lastSyncAt = time.Now()
	return nil
}

// Sync forces an out-of-band fsync regardless of the durability mode's
// own cadence; Database.Flush calls it.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked()
}

func (w *Writer) rotateLocked() error {
	if err := w.file.Sync(); err != nil {
		return strataerr.Wrap(strataerr.Io, err, "final fsync before wal rotation")
	}
	if err := w.file.Close(); err != nil {
		return strataerr.Wrap(strataerr.Io, err, "close wal segment before rotation")
	}
	next := w.segmentIndex + 1
	f, err := createSegment(w.dir, next, w.databaseUUID)
	if err != nil {
		return err
	}
	w.log.Debug().Uint32("segment", next).Msg("wal segment rotated")
	w.file = f
	w.segmentIndex = next
	w.segmentBytes = segmentHeaderSize
	return nil
}

// ActiveSegmentIndex returns the index of the segment currently being
// written, for the checkpoint coordinator's retention bookkeeping.
func (w *Writer) ActiveSegmentIndex() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.segmentIndex
}

// Close flushes and closes the active segment.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return strataerr.Wrap(strataerr.Io, err, "final fsync on close")
	}
	return w.file.Close()
}
