package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/strataerr"
)

// FileName returns the canonical name of the snapshot file for a
// checkpoint id.
func FileName(checkpointID uint64) string {
	return fmt.Sprintf("%012d.snap", checkpointID)
}

func tmpFileName(checkpointID uint64) string {
	return fmt.Sprintf("%012d.tmp", checkpointID)
}

// Write captures entries (already grouped by primitive tag by the
// caller) into a checkpoint file under dir, following the atomic
// write-then-rename protocol: write to "<id>.tmp", fsync, rename to
// "<id>.snap" (atomic on POSIX), fsync the parent directory.
// The final MANIFEST append is the caller's responsibility (pkg/engine
// owns the commit-barrier ordering across both files).
func Write(dir string, checkpointID uint64, walWatermark uint64, sections map[byte][]Entry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return strataerr.Wrap(strataerr.Io, err, "create snapshot dir %s", dir)
	}

	tmpPath := filepath.Join(dir, tmpFileName(checkpointID))
	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return strataerr.Wrap(strataerr.Io, err, "create snapshot tmp file %s", tmpPath)
	}

	tags := make([]byte, 0, len(sections))
	for tag := range sections {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	header := Header{
		CheckpointID: checkpointID,
		WalWatermark: walWatermark,
		CreatedAtUs:  uint64(ids.Now()),
		SectionCount: uint16(len(tags)),
	}
	if _, err := f.Write(header.encode()); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return strataerr.Wrap(strataerr.Io, err, "write snapshot header %s", tmpPath)
	}

	for _, tag := range tags {
		entries := sections[tag]
		body, err := encodeEntries(entries)
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
			return strataerr.Wrap(strataerr.Internal, err, "encode snapshot section tag=%d", tag)
		}
		sh := SectionHeader{PrimitiveTag: tag, EntryCount: uint32(len(entries)), ByteLen: uint64(len(body)), CRC32: crcOf(body)}
		if _, err := f.Write(sh.encode()); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return strataerr.Wrap(strataerr.Io, err, "write snapshot section header tag=%d", tag)
		}
		if _, err := f.Write(body); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return strataerr.Wrap(strataerr.Io, err, "write snapshot section body tag=%d", tag)
		}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return strataerr.Wrap(strataerr.Io, err, "fsync snapshot tmp file %s", tmpPath)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return strataerr.Wrap(strataerr.Io, err, "close snapshot tmp file %s", tmpPath)
	}

	finalPath := filepath.Join(dir, FileName(checkpointID))
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return strataerr.Wrap(strataerr.Io, err, "rename snapshot %s -> %s", tmpPath, finalPath)
	}

	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return strataerr.Wrap(strataerr.Io, err, "open snapshot dir for fsync %s", dir)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return strataerr.Wrap(strataerr.Io, err, "fsync snapshot dir %s", dir)
	}
	return nil
}

// GCTemporaries removes every ".tmp" file left in dir, for cleanup on
// database open: a ".tmp" found on open means its checkpoint never
// finished the atomic write protocol and MANIFEST never learned about
// it, so it is safe to discard.
func GCTemporaries(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return strataerr.Wrap(strataerr.Io, err, "list snapshot dir %s", dir)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return strataerr.Wrap(strataerr.Io, err, "remove stale snapshot tmp %s", e.Name())
			}
		}
	}
	return nil
}
