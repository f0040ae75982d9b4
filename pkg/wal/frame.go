package wal

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/stratadb/strata/pkg/strataerr"
)

// frameFixedSize is the byte count of record_version+type_tag+reserved,
// the portion of a frame counted in length alongside the payload.
const frameFixedSize = 2 + 1 + 1

// Record is one decoded WAL frame.
type Record struct {
	Type    RecordType
	Payload []byte
}

// encodeFrame renders rec into its on-disk framing: a length prefix,
// the fixed header, the payload, and a trailing CRC32 over everything
// after the length prefix.
func encodeFrame(rec Record) []byte {
	length := uint32(frameFixedSize + len(rec.Payload))
	buf := make([]byte, 4+int(length)+4)
	binary.LittleEndian.PutUint32(buf[0:4], length)
	binary.LittleEndian.PutUint16(buf[4:6], recordVersion)
	buf[6] = byte(rec.Type)
	buf[7] = 0 // reserved
	copy(buf[8:8+len(rec.Payload)], rec.Payload)
	crc := crc32.ChecksumIEEE(buf[4 : 4+int(length)])
	binary.LittleEndian.PutUint32(buf[4+int(length):], crc)
	return buf
}

// readFrame reads one frame from r, enforcing maxEntrySize and
// validating the CRC32. io.EOF is returned verbatim when r is
// positioned exactly at the end of the stream (a clean end, not
// corruption); any other error (including io.ErrUnexpectedEOF from a
// frame cut short mid-read) is wrapped as Corruption so the caller can
// apply the tail-truncation recovery rule.
func readFrame(r io.Reader, maxEntrySize int) (Record, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, strataerr.Wrap(strataerr.Corruption, err, "wal frame length truncated")
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length < frameFixedSize {
		return Record{}, strataerr.New(strataerr.Corruption, "wal frame length %d below minimum", length)
	}
	payloadLen := int(length) - frameFixedSize
	if payloadLen > maxEntrySize {
		return Record{}, strataerr.New(strataerr.Corruption, "wal frame payload %d exceeds max entry size %d", payloadLen, maxEntrySize)
	}

	body := make([]byte, int(length))
	if _, err := io.ReadFull(r, body); err != nil {
		return Record{}, strataerr.Wrap(strataerr.Corruption, err, "wal frame body truncated")
	}

	var crcBuf [4]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return Record{}, strataerr.Wrap(strataerr.Corruption, err, "wal frame crc truncated")
	}
	wantCRC := binary.LittleEndian.Uint32(crcBuf[:])
	gotCRC := crc32.ChecksumIEEE(body)
	if gotCRC != wantCRC {
		return Record{}, strataerr.New(strataerr.Corruption, "wal frame crc mismatch: got %08x want %08x", gotCRC, wantCRC)
	}

	ver := binary.LittleEndian.Uint16(body[0:2])
	if ver != recordVersion {
		return Record{}, strataerr.New(strataerr.Corruption, "wal frame version %d unsupported", ver)
	}
	rt := RecordType(body[2])
	payload := make([]byte, payloadLen)
	copy(payload, body[frameFixedSize:])
	return Record{Type: rt, Payload: payload}, nil
}
