// Package sink appends usage records to a log file.
package sink

import (
	"os"
	"sync"

	"github.com/moby/sys/sequential"
	"github.com/pkg/errors"

	"github.com/replicatedcom/usagemon/usage"
)

var ErrClosed = errors.New("sink is closed")

// File writes one header at open and then whole records, each with a single
// write to the file.
type File struct {
	path    string
	version int64

	mu     sync.Mutex
	f      *os.File
	closed bool
}

// Open creates or truncates path and writes the header for version.
func Open(path string, version int64) (*File, error) {
	if _, err := usage.RecordSize(version); err != nil {
		return nil, err
	}

	f, err := sequential.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create usage log")
	}

	s := &File{
		path:    path,
		version: version,
		f:       f,
	}
	if _, err := f.Write(usage.EncodeHeader(version)); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "write header to %s", path)
	}
	return s, nil
}

func (s *File) Path() string {
	return s.path
}

func (s *File) Version() int64 {
	return s.version
}

// Append encodes sample and writes it. The record is encoded in full before
// anything is written.
func (s *File) Append(sample usage.Sample) error {
	record, err := usage.EncodeRecord(sample, s.version)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	_, err = s.f.Write(record)
	return errors.Wrapf(err, "append to %s", s.path)
}

// Close closes the file. Later calls are no-ops.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return errors.Wrapf(s.f.Close(), "close %s", s.path)
}
