package snapshot

import (
	"io"
	"os"
	"path/filepath"

	"github.com/stratadb/strata/pkg/strataerr"
)

// Snapshot is a fully-decoded checkpoint file: its header plus every
// entry across every section, in the order sections appeared on disk.
type Snapshot struct {
	Header  Header
	Entries []Entry
}

// Read loads and validates the checkpoint file for checkpointID from
// dir, checking every section's CRC32 before returning.
func Read(dir string, checkpointID uint64) (Snapshot, error) {
	path := filepath.Join(dir, FileName(checkpointID))
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, strataerr.Wrap(strataerr.Io, err, "open snapshot %s", path)
	}
	defer f.Close()

	headerBuf := make([]byte, headerSize)
	if _, err := io.ReadFull(f, headerBuf); err != nil {
		return Snapshot{}, strataerr.Wrap(strataerr.Corruption, err, "read snapshot header %s", path)
	}
	header, err := decodeHeader(headerBuf)
	if err != nil {
		return Snapshot{}, err
	}

	var allEntries []Entry
	for i := uint16(0); i < header.SectionCount; i++ {
		shBuf := make([]byte, sectionHeaderSize)
		if _, err := io.ReadFull(f, shBuf); err != nil {
			return Snapshot{}, strataerr.Wrap(strataerr.Corruption, err, "read snapshot section header %s", path)
		}
		sh, err := decodeSectionHeader(shBuf)
		if err != nil {
			return Snapshot{}, err
		}
		body := make([]byte, sh.ByteLen)
		if _, err := io.ReadFull(f, body); err != nil {
			return Snapshot{}, strataerr.Wrap(strataerr.Corruption, err, "read snapshot section body %s", path)
		}
		if crcOf(body) != sh.CRC32 {
			return Snapshot{}, strataerr.New(strataerr.Corruption, "snapshot section tag=%d crc mismatch in %s", sh.PrimitiveTag, path)
		}
		entries, err := decodeEntries(body)
		if err != nil {
			return Snapshot{}, strataerr.Wrap(strataerr.Corruption, err, "decode snapshot section tag=%d in %s", sh.PrimitiveTag, path)
		}
		if len(entries) != int(sh.EntryCount) {
			return Snapshot{}, strataerr.New(strataerr.Corruption, "snapshot section tag=%d entry count mismatch in %s", sh.PrimitiveTag, path)
		}
		allEntries = append(allEntries, entries...)
	}

	return Snapshot{Header: header, Entries: allEntries}, nil
}
