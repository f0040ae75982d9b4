package snapshot

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/stratadb/strata/pkg/strataerr"
)

// ManifestFileName is MANIFEST's fixed name at the root of the data
// directory.
const ManifestFileName = "MANIFEST"

// Manifest is the source of truth for "which checkpoint is current".
// It is an append-only line-delimited JSON log; the last line wins on
// recovery. JSON (not MessagePack) here is deliberate: MANIFEST is
// small, rarely written, and meant to be human-inspectable on a broken
// database — unlike the WAL and snapshot bodies, which are hot paths.
type Manifest struct {
	FormatVersion         uint32    `json:"format_version"`
	DatabaseUUID          uuid.UUID `json:"database_uuid"`
	CodecID               string    `json:"codec_id"`
	ActiveCheckpointID    uint64    `json:"active_checkpoint_id"`
	WalPrefixRetiredUpTo  uint32    `json:"wal_prefix_retired_up_to"`
}

const manifestFormatVersion uint32 = 1

// NewManifest builds the first MANIFEST record for a freshly created
// database.
func NewManifest(databaseUUID uuid.UUID, codecID string) Manifest {
	return Manifest{FormatVersion: manifestFormatVersion, DatabaseUUID: databaseUUID, CodecID: codecID}
}

// AppendManifest appends rec as the newest line of MANIFEST, the final
// step of the checkpoint commit barrier.
func AppendManifest(dataDir string, rec Manifest) error {
	path := filepath.Join(dataDir, ManifestFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return strataerr.Wrap(strataerr.Io, err, "open manifest %s", path)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return strataerr.Wrap(strataerr.Internal, err, "encode manifest record")
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return strataerr.Wrap(strataerr.Io, err, "append manifest %s", path)
	}
	return f.Sync()
}

// ReadManifest returns the most recently appended Manifest record, or
// ok=false if MANIFEST does not exist yet (a brand-new database).
func ReadManifest(dataDir string) (Manifest, bool, error) {
	path := filepath.Join(dataDir, ManifestFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, false, nil
		}
		return Manifest{}, false, strataerr.Wrap(strataerr.Io, err, "open manifest %s", path)
	}
	defer f.Close()

	var last Manifest
	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Manifest
		if err := json.Unmarshal(line, &rec); err != nil {
			// A partial trailing line is a crash mid-append; the
			// previously parsed record is still the valid "last known
			// good" pointer, so stop here rather than failing open.
			break
		}
		last = rec
		found = true
	}
	if err := scanner.Err(); err != nil {
		return Manifest{}, false, strataerr.Wrap(strataerr.Io, err, "read manifest %s", path)
	}
	return last, found, nil
}
