// Package snapshot implements Strata's checkpoint files and the
// MANIFEST that tracks which one is current: periodic,
// atomically-written captures of the entire ShardedStore that bound
// how much WAL a crash recovery has to replay.
package snapshot

import (
	"encoding/binary"

	"github.com/stratadb/strata/pkg/strataerr"
)

var snapshotMagic = [10]byte{'S', 'T', 'R', 'A', 'T', 'A', 'S', 'N', 'P', 0}

const snapshotFormatVersion uint16 = 1

// headerSize is magic(10)+version(2)+checkpoint_id(8)+wal_watermark(8)+
// created_at_us(8)+section_count(2)+header_crc(4).
const headerSize = 10 + 2 + 8 + 8 + 8 + 2 + 4

// Header is the fixed-size preamble of a snapshot file.
type Header struct {
	CheckpointID  uint64
	WalWatermark  uint64
	CreatedAtUs   uint64
	SectionCount  uint16
}

func (h Header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:10], snapshotMagic[:])
	binary.LittleEndian.PutUint16(buf[10:12], snapshotFormatVersion)
	binary.LittleEndian.PutUint64(buf[12:20], h.CheckpointID)
	binary.LittleEndian.PutUint64(buf[20:28], h.WalWatermark)
	binary.LittleEndian.PutUint64(buf[28:36], h.CreatedAtUs)
	binary.LittleEndian.PutUint16(buf[36:38], h.SectionCount)
	crc := crcOf(buf[0:38])
	binary.LittleEndian.PutUint32(buf[38:42], crc)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, strataerr.New(strataerr.Corruption, "snapshot header truncated")
	}
	if string(buf[0:10]) != string(snapshotMagic[:]) {
		return Header{}, strataerr.New(strataerr.Corruption, "snapshot has bad magic")
	}
	wantCRC := binary.LittleEndian.Uint32(buf[38:42])
	if gotCRC := crcOf(buf[0:38]); gotCRC != wantCRC {
		return Header{}, strataerr.New(strataerr.Corruption, "snapshot header crc mismatch: got %08x want %08x", gotCRC, wantCRC)
	}
	version := binary.LittleEndian.Uint16(buf[10:12])
	if version != snapshotFormatVersion {
		return Header{}, strataerr.New(strataerr.Corruption, "snapshot format version %d unsupported", version)
	}
	return Header{
		CheckpointID: binary.LittleEndian.Uint64(buf[12:20]),
		WalWatermark: binary.LittleEndian.Uint64(buf[20:28]),
		CreatedAtUs:  binary.LittleEndian.Uint64(buf[28:36]),
		SectionCount: binary.LittleEndian.Uint16(buf[36:38]),
	}, nil
}

// SectionHeader precedes one primitive tag's serialized entries within
// a snapshot file.
type SectionHeader struct {
	PrimitiveTag byte
	EntryCount   uint32
	ByteLen      uint64
	CRC32        uint32
}

const sectionHeaderSize = 1 + 4 + 8 + 4

func (s SectionHeader) encode() []byte {
	buf := make([]byte, sectionHeaderSize)
	buf[0] = s.PrimitiveTag
	binary.LittleEndian.PutUint32(buf[1:5], s.EntryCount)
	binary.LittleEndian.PutUint64(buf[5:13], s.ByteLen)
	binary.LittleEndian.PutUint32(buf[13:17], s.CRC32)
	return buf
}

func decodeSectionHeader(buf []byte) (SectionHeader, error) {
	if len(buf) < sectionHeaderSize {
		return SectionHeader{}, strataerr.New(strataerr.Corruption, "snapshot section header truncated")
	}
	return SectionHeader{
		PrimitiveTag: buf[0],
		EntryCount:   binary.LittleEndian.Uint32(buf[1:5]),
		ByteLen:      binary.LittleEndian.Uint64(buf[5:13]),
		CRC32:        binary.LittleEndian.Uint32(buf[13:17]),
	}, nil
}
