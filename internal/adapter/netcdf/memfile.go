package netcdf

import (
	"errors"
	"io"
)

// memFile is a growable in-memory ReaderAt/WriterAt so whole artifacts can
// be encoded before a single atomic store write.
type memFile struct {
	buf []byte
}

func newMemFile(data []byte) *memFile {
	return &memFile{buf: data}
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	end := off + int64(len(p))
	if end > int64(len(m.buf)) {
		if end > int64(cap(m.buf)) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	return copy(m.buf[off:], p), nil
}

func (m *memFile) Bytes() []byte { return m.buf }

// readOnly adapts a ReaderAt to cdf.ReaderWriterAt for opening sources.
type readOnly struct {
	io.ReaderAt
}

func (readOnly) WriteAt([]byte, int64) (int, error) {
	return 0, errors.New("source datasets are read-only")
}
