// Package segment implements the on-disk partial index artifact.
//
// Layout (all integers little endian):
//
//	header   64 bytes   magic, version, term count, posting count,
//	                    data offset, data size, table offset, crc32
//	data     entries in ascending term order; each entry is
//	         uvarint(len(term)) term uvarint(n) n*uint64 doc IDs
//	table    term count * uint64 entry offsets, relative to data offset
//
// The offset table gives an O(1) seek to the Nth entry, so a bounded window
// of entries can be read without decoding anything before it.
package segment

import (
	"encoding/binary"

	bsbierrors "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/errors"
)

const (
	MagicBytes    uint32 = 0x49425342 // "BSBI"
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	offsetWidth          = 8
	MaxTermLen           = 1 << 16
	Extension            = ".idx"
)

// Header is the fixed-size header written at the start of every artifact.
type Header struct {
	Magic        uint32
	Version      uint32
	TermCount    uint64
	PostingCount uint64
	DataOffset   uint64
	DataSize     uint64
	TableOffset  uint64
	Checksum     uint32
}

func (h Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.TermCount)
	binary.LittleEndian.PutUint64(buf[16:24], h.PostingCount)
	binary.LittleEndian.PutUint64(buf[24:32], h.DataOffset)
	binary.LittleEndian.PutUint64(buf[32:40], h.DataSize)
	binary.LittleEndian.PutUint64(buf[40:48], h.TableOffset)
	binary.LittleEndian.PutUint32(buf[48:52], h.Checksum)
	return buf
}

func decodeHeader(buf []byte, fileSize int64) (Header, error) {
	h := Header{
		Magic:        binary.LittleEndian.Uint32(buf[0:4]),
		Version:      binary.LittleEndian.Uint32(buf[4:8]),
		TermCount:    binary.LittleEndian.Uint64(buf[8:16]),
		PostingCount: binary.LittleEndian.Uint64(buf[16:24]),
		DataOffset:   binary.LittleEndian.Uint64(buf[24:32]),
		DataSize:     binary.LittleEndian.Uint64(buf[32:40]),
		TableOffset:  binary.LittleEndian.Uint64(buf[40:48]),
		Checksum:     binary.LittleEndian.Uint32(buf[48:52]),
	}
	if h.Magic != MagicBytes {
		return h, bsbierrors.Corrupt("bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return h, bsbierrors.Corrupt("unsupported format version %d", h.Version)
	}
	if h.DataOffset != uint64(HeaderSize) || h.TableOffset != h.DataOffset+h.DataSize {
		return h, bsbierrors.Corrupt("inconsistent region offsets data=%d+%d table=%d",
			h.DataOffset, h.DataSize, h.TableOffset)
	}
	size := uint64(fileSize)
	if size < h.TableOffset || size-h.TableOffset != h.TermCount*offsetWidth ||
		h.TermCount > size/offsetWidth {
		return h, bsbierrors.Corrupt("file size %d does not match %d terms", fileSize, h.TermCount)
	}
	return h, nil
}

// appendEntry encodes one entry onto buf.
func appendEntry(buf []byte, term string, postings []uint64) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(term)))
	buf = append(buf, term...)
	buf = binary.AppendUvarint(buf, uint64(len(postings)))
	for _, id := range postings {
		buf = binary.LittleEndian.AppendUint64(buf, id)
	}
	return buf
}
