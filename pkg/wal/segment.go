package wal

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/strataerr"
)

var segmentMagic = [4]byte{'W', 'A', 'L', 'S'}

const segmentHeaderVersion uint32 = 1
const segmentHeaderSize = 4 + 4 + 16 + 4 + 8 // magic+version+uuid+index+created_at_us

// SegmentHeader identifies a WAL segment file: the database it
// belongs to (so a segment from a different database is never
// accidentally replayed into this one) and its position in the
// segment sequence.
type SegmentHeader struct {
	Version       uint32
	DatabaseUUID  uuid.UUID
	SegmentIndex  uint32
	CreatedAtUs   uint64
}

func (h SegmentHeader) encode() []byte {
	buf := make([]byte, segmentHeaderSize)
	copy(buf[0:4], segmentMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	copy(buf[8:24], h.DatabaseUUID[:])
	binary.LittleEndian.PutUint32(buf[24:28], h.SegmentIndex)
	binary.LittleEndian.PutUint64(buf[28:36], h.CreatedAtUs)
	return buf
}

func decodeSegmentHeader(buf []byte) (SegmentHeader, error) {
	if len(buf) < segmentHeaderSize {
		return SegmentHeader{}, strataerr.New(strataerr.Corruption, "wal segment header truncated")
	}
	if string(buf[0:4]) != string(segmentMagic[:]) {
		return SegmentHeader{}, strataerr.New(strataerr.Corruption, "wal segment has bad magic")
	}
	var h SegmentHeader
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	copy(h.DatabaseUUID[:], buf[8:24])
	h.SegmentIndex = binary.LittleEndian.Uint32(buf[24:28])
	h.CreatedAtUs = binary.LittleEndian.Uint64(buf[28:36])
	if h.Version != segmentHeaderVersion {
		return SegmentHeader{}, strataerr.New(strataerr.Corruption, "wal segment version %d unsupported", h.Version)
	}
	return h, nil
}

// SegmentFileName returns the canonical name of segment index within a
// WAL directory.
func SegmentFileName(index uint32) string {
	return fmt.Sprintf("wal-%06d.seg", index)
}

// createSegment creates and opens a brand-new segment file, writing
// its header.
func createSegment(dir string, index uint32, databaseUUID uuid.UUID) (*os.File, error) {
	path := dir + string(os.PathSeparator) + SegmentFileName(index)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, strataerr.Wrap(strataerr.Io, err, "create wal segment %s", path)
	}
	header := SegmentHeader{
		Version:      segmentHeaderVersion,
		DatabaseUUID: databaseUUID,
		SegmentIndex: index,
		CreatedAtUs:  uint64(ids.Now()),
	}
	if _, err := f.Write(header.encode()); err != nil {
		f.Close()
		return nil, strataerr.Wrap(strataerr.Io, err, "write wal segment header %s", path)
	}
	return f, nil
}

// openSegmentForAppend opens an existing segment and seeks to the end,
// used when resuming into the active (tail) segment at startup.
func openSegmentForAppend(path string) (*os.File, SegmentHeader, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, SegmentHeader{}, strataerr.Wrap(strataerr.Io, err, "open wal segment %s", path)
	}
	headerBuf := make([]byte, segmentHeaderSize)
	if _, err := io.ReadFull(f, headerBuf); err != nil {
		f.Close()
		return nil, SegmentHeader{}, strataerr.Wrap(strataerr.Corruption, err, "read wal segment header %s", path)
	}
	header, err := decodeSegmentHeader(headerBuf)
	if err != nil {
		f.Close()
		return nil, SegmentHeader{}, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, SegmentHeader{}, strataerr.Wrap(strataerr.Io, err, "seek wal segment %s", path)
	}
	return f, header, nil
}
