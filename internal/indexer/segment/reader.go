package segment

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/index"
	bsbierrors "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/errors"
)

// Reader gives random and sequential read access to a committed artifact.
// It only uses ReadAt, so one Reader may serve concurrent callers.
type Reader struct {
	file     *os.File
	filePath string
	header   Header
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, bsbierrors.Persistence(err, "opening index file %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, bsbierrors.Persistence(err, "stat index file %s", path)
	}
	if info.Size() < int64(HeaderSize) {
		f.Close()
		return nil, bsbierrors.Corrupt("%s: file of %d bytes is shorter than the header", path, info.Size())
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header, err := decodeHeader(headerBytes, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
	}, nil
}

// Len is the number of terms in the index.
func (r *Reader) Len() int {
	return int(r.header.TermCount)
}

// PostingCount is the total number of (term, doc) pairs.
func (r *Reader) PostingCount() uint64 {
	return r.header.PostingCount
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Header() Header {
	return r.header
}

// ReadRange returns up to count consecutive entries starting at entry
// start. It seeks straight to start through the offset table. A start at or
// past the end returns no entries.
func (r *Reader) ReadRange(start, count int) ([]index.TermEntry, error) {
	if start < 0 || count < 0 {
		return nil, fmt.Errorf("invalid range start=%d count=%d", start, count)
	}
	if start >= r.Len() || count == 0 {
		return nil, nil
	}
	if start+count > r.Len() {
		count = r.Len() - start
	}
	off, err := r.entryOffset(start)
	if err != nil {
		return nil, err
	}
	br := r.dataReader(off)
	entries := make([]index.TermEntry, 0, count)
	for i := 0; i < count; i++ {
		entry, err := r.decodeEntry(br)
		if err != nil {
			return nil, fmt.Errorf("%s: entry %d: %w", r.filePath, start+i, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Scan calls fn for every entry in stored order. It stops at the first
// error returned by fn.
func (r *Reader) Scan(fn func(index.TermEntry) error) error {
	br := r.dataReader(0)
	for i := 0; i < r.Len(); i++ {
		entry, err := r.decodeEntry(br)
		if err != nil {
			return fmt.Errorf("%s: entry %d: %w", r.filePath, i, err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the posting list for an exact term by binary search over
// the offset table.
func (r *Reader) Lookup(term string) (index.PostingList, bool, error) {
	var searchErr error
	i := sort.Search(r.Len(), func(i int) bool {
		if searchErr != nil {
			return true
		}
		t, err := r.termAt(i)
		if err != nil {
			searchErr = err
			return true
		}
		return t >= term
	})
	if searchErr != nil {
		return nil, false, searchErr
	}
	if i >= r.Len() {
		return nil, false, nil
	}
	entries, err := r.ReadRange(i, 1)
	if err != nil {
		return nil, false, err
	}
	if entries[0].Term != term {
		return nil, false, nil
	}
	return entries[0].Postings, true, nil
}

// Verify recomputes the checksum and checks that terms and postings are
// strictly ascending throughout.
func (r *Reader) Verify() error {
	h := r.header
	section := io.NewSectionReader(r.file, int64(h.DataOffset), int64(h.DataSize+h.TermCount*offsetWidth))
	crc := crc32.NewIEEE()
	if _, err := io.Copy(crc, section); err != nil {
		return fmt.Errorf("%s: reading for checksum: %w", r.filePath, err)
	}
	if crc.Sum32() != h.Checksum {
		return bsbierrors.Corrupt("%s: checksum %08x, header says %08x", r.filePath, crc.Sum32(), h.Checksum)
	}
	var prev string
	var seen, postings uint64
	err := r.Scan(func(e index.TermEntry) error {
		if seen > 0 && e.Term <= prev {
			return bsbierrors.Corrupt("%s: term %q at entry %d follows %q", r.filePath, e.Term, seen, prev)
		}
		if err := e.Postings.Validate(); err != nil {
			return bsbierrors.Corrupt("%s: term %q: %v", r.filePath, e.Term, err)
		}
		prev = e.Term
		seen++
		postings += uint64(len(e.Postings))
		return nil
	})
	if err != nil {
		return err
	}
	if postings != h.PostingCount {
		return bsbierrors.Corrupt("%s: %d postings, header says %d", r.filePath, postings, h.PostingCount)
	}
	return nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}

func (r *Reader) entryOffset(i int) (uint64, error) {
	var buf [offsetWidth]byte
	pos := int64(r.header.TableOffset) + int64(i)*offsetWidth
	if _, err := r.file.ReadAt(buf[:], pos); err != nil {
		return 0, fmt.Errorf("%s: reading offset of entry %d: %w", r.filePath, i, err)
	}
	off := binary.LittleEndian.Uint64(buf[:])
	if off >= r.header.DataSize {
		return 0, bsbierrors.Corrupt("%s: entry %d offset %d outside data region", r.filePath, i, off)
	}
	return off, nil
}

func (r *Reader) termAt(i int) (string, error) {
	off, err := r.entryOffset(i)
	if err != nil {
		return "", err
	}
	br := r.dataReader(off)
	return r.decodeTerm(br)
}

func (r *Reader) dataReader(off uint64) *bufio.Reader {
	section := io.NewSectionReader(r.file, int64(r.header.DataOffset+off), int64(r.header.DataSize-off))
	return bufio.NewReaderSize(section, 32*1024)
}

func (r *Reader) decodeTerm(br *bufio.Reader) (string, error) {
	n, err := binary.ReadUvarint(br)
	if err != nil {
		return "", truncated(err)
	}
	if n > MaxTermLen {
		return "", bsbierrors.Corrupt("term length %d exceeds limit", n)
	}
	term := make([]byte, n)
	if _, err := io.ReadFull(br, term); err != nil {
		return "", truncated(err)
	}
	return string(term), nil
}

func (r *Reader) decodeEntry(br *bufio.Reader) (index.TermEntry, error) {
	term, err := r.decodeTerm(br)
	if err != nil {
		return index.TermEntry{}, err
	}
	n, err := binary.ReadUvarint(br)
	if err != nil {
		return index.TermEntry{}, truncated(err)
	}
	if n > r.header.DataSize/offsetWidth {
		return index.TermEntry{}, bsbierrors.Corrupt("term %q claims %d postings", term, n)
	}
	raw := make([]byte, n*offsetWidth)
	if _, err := io.ReadFull(br, raw); err != nil {
		return index.TermEntry{}, truncated(err)
	}
	postings := make(index.PostingList, n)
	for i := range postings {
		postings[i] = binary.LittleEndian.Uint64(raw[i*offsetWidth:])
	}
	return index.TermEntry{Term: term, Postings: postings}, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return bsbierrors.Corrupt("entry truncated")
	}
	return err
}
