package segment

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/index"
	bsbierrors "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/errors"
)

// Writer streams entries into a new artifact. Entries must arrive in
// strictly ascending term order. Nothing is visible at the final path until
// Commit; Abort (or any failed call) leaves no file behind.
//
// Entry offsets are spilled to a sidecar file while writing so that memory
// stays constant in the number of terms.
type Writer struct {
	path     string
	tmpPath  string
	file     *os.File
	data     *bufio.Writer
	offFile  *os.File
	offsets  *bufio.Writer
	crc      hash.Hash32
	scratch  []byte
	dataSize uint64
	terms    uint64
	postings uint64
	lastTerm string
	done     bool
}

// Create opens a writer whose artifact will appear at path on Commit.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, bsbierrors.Persistence(err, "creating index directory")
	}
	if _, err := os.Stat(path); err == nil {
		return nil, bsbierrors.Persistence(os.ErrExist, "index %s already exists", path)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, bsbierrors.Persistence(err, "creating temp index file")
	}
	offFile, err := os.Create(tmpPath + ".off")
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, bsbierrors.Persistence(err, "creating offset spill file")
	}
	// Header is patched on Commit; reserve its space now.
	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		w := &Writer{tmpPath: tmpPath, file: f, offFile: offFile}
		w.Abort()
		return nil, bsbierrors.Persistence(err, "reserving header")
	}
	crc := crc32.NewIEEE()
	return &Writer{
		path:    path,
		tmpPath: tmpPath,
		file:    f,
		data:    bufio.NewWriterSize(io.MultiWriter(f, crc), 64*1024),
		offFile: offFile,
		offsets: bufio.NewWriter(offFile),
		crc:     crc,
	}, nil
}

// Append writes one entry. A term not greater than the previous one, or a
// posting list that is not strictly ascending, is a CorruptIndexError.
func (w *Writer) Append(entry index.TermEntry) error {
	if w.done {
		return fmt.Errorf("append to closed writer %s", w.path)
	}
	if len(entry.Term) > MaxTermLen {
		return bsbierrors.Corrupt("term of %d bytes exceeds limit", len(entry.Term))
	}
	if w.terms > 0 && entry.Term <= w.lastTerm {
		return bsbierrors.Corrupt("term %q written after %q", entry.Term, w.lastTerm)
	}
	if err := entry.Postings.Validate(); err != nil {
		return bsbierrors.Corrupt("term %q: %v", entry.Term, err)
	}

	var off [offsetWidth]byte
	binary.LittleEndian.PutUint64(off[:], w.dataSize)
	if _, err := w.offsets.Write(off[:]); err != nil {
		return bsbierrors.Persistence(err, "spilling offset for term %q", entry.Term)
	}
	w.scratch = appendEntry(w.scratch[:0], entry.Term, entry.Postings)
	if _, err := w.data.Write(w.scratch); err != nil {
		return bsbierrors.Persistence(err, "writing term %q", entry.Term)
	}
	w.dataSize += uint64(len(w.scratch))
	w.terms++
	w.postings += uint64(len(entry.Postings))
	w.lastTerm = entry.Term
	return nil
}

// Terms returns the number of entries appended so far.
func (w *Writer) Terms() int {
	return int(w.terms)
}

// Commit appends the offset table, writes the header, syncs, and renames the
// temp file into place.
func (w *Writer) Commit() error {
	if w.done {
		return fmt.Errorf("commit of closed writer %s", w.path)
	}
	if err := w.commit(); err != nil {
		w.Abort()
		return err
	}
	w.done = true
	return nil
}

func (w *Writer) commit() error {
	if err := w.offsets.Flush(); err != nil {
		return bsbierrors.Persistence(err, "flushing offset spill file")
	}
	if _, err := w.offFile.Seek(0, io.SeekStart); err != nil {
		return bsbierrors.Persistence(err, "rewinding offset spill file")
	}
	if _, err := io.Copy(w.data, w.offFile); err != nil {
		return bsbierrors.Persistence(err, "writing offset table")
	}
	if err := w.data.Flush(); err != nil {
		return bsbierrors.Persistence(err, "flushing index data")
	}
	header := Header{
		Magic:        MagicBytes,
		Version:      FormatVersion,
		TermCount:    w.terms,
		PostingCount: w.postings,
		DataOffset:   uint64(HeaderSize),
		DataSize:     w.dataSize,
		TableOffset:  uint64(HeaderSize) + w.dataSize,
		Checksum:     w.crc.Sum32(),
	}
	if _, err := w.file.WriteAt(header.encode(), 0); err != nil {
		return bsbierrors.Persistence(err, "writing header")
	}
	if err := w.file.Sync(); err != nil {
		return bsbierrors.Persistence(err, "syncing index file")
	}
	if err := w.file.Close(); err != nil {
		return bsbierrors.Persistence(err, "closing index file")
	}
	w.offFile.Close()
	os.Remove(w.offFile.Name())
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		return bsbierrors.Persistence(err, "renaming index file")
	}
	return nil
}

// Abort discards everything written. Safe to call more than once and after
// a failed Commit.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	if w.file != nil {
		w.file.Close()
	}
	if w.offFile != nil {
		w.offFile.Close()
		os.Remove(w.offFile.Name())
	}
	os.Remove(w.tmpPath)
}

// WriteEntries writes a complete artifact from an already sorted slice.
func WriteEntries(path string, entries []index.TermEntry) error {
	w, err := Create(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.Append(e); err != nil {
			w.Abort()
			return err
		}
	}
	return w.Commit()
}
