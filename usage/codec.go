package usage

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/pkg/errors"
)

// RecordSize returns the width of one record under version.
func RecordSize(version int64) (int, error) {
	switch version {
	case Version1:
		return RecordSizeV1, nil
	case Version2:
		return RecordSizeV2, nil
	}
	return 0, &FormatError{Op: "record size", Input: version, Reason: "unsupported version"}
}

// EncodeHeader returns the file header declaring version.
func EncodeHeader(version int64) []byte {
	b := make([]byte, HeaderSize)
	binary.BigEndian.PutUint64(b, uint64(version))
	return b
}

// EncodeRecord returns the bytes of s under version. Fields the version does
// not carry are dropped.
func EncodeRecord(s Sample, version int64) ([]byte, error) {
	size, err := RecordSize(version)
	if err != nil {
		return nil, err
	}

	b := make([]byte, size)
	putInt(b, 0, s.TimeMsecs)
	putInt(b, 1, s.MemoryBytes)
	putFloat(b, 2, s.CPUUsage)
	if version >= Version2 {
		putInt(b, 3, s.NonIOStorageBytes)
		putInt(b, 4, s.IOStorageBytes)
		putFloat(b, 5, s.UploadMBps)
		putFloat(b, 6, s.DownloadMBps)
	}
	return b, nil
}

// DecodeHeader returns the version declared by the first bytes of a log.
func DecodeHeader(b []byte) (int64, error) {
	if len(b) < HeaderSize {
		return 0, &FormatError{Op: "decode header", Input: len(b), Reason: "short header"}
	}
	version := int64(binary.BigEndian.Uint64(b[:HeaderSize]))
	if _, err := RecordSize(version); err != nil {
		return 0, &FormatError{Op: "decode header", Input: version, Reason: "version out of range"}
	}
	return version, nil
}

// Decode parses a whole log file. An empty file holds no data and decodes to
// nil without error.
func Decode(data []byte) (*Table, error) {
	if len(data) == 0 {
		return nil, nil
	}
	version, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	size, _ := RecordSize(version)

	body := data[HeaderSize:]
	if len(body)%size != 0 {
		return nil, &FormatError{
			Op:     "decode",
			Input:  len(body) % size,
			Reason: "trailing bytes do not form a whole record",
		}
	}

	table := &Table{
		Version: version,
		Samples: make([]Sample, 0, len(body)/size),
	}
	for off := 0; off < len(body); off += size {
		table.Samples = append(table.Samples, decodeRecord(body[off:off+size], version))
	}
	return table, nil
}

// DecodeFile reads and decodes the log at path.
func DecodeFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	table, err := Decode(data)
	return table, errors.Wrapf(err, "decode %s", path)
}

func decodeRecord(b []byte, version int64) Sample {
	s := Sample{
		TimeMsecs:   getInt(b, 0),
		MemoryBytes: getInt(b, 1),
		CPUUsage:    getFloat(b, 2),
	}
	if version >= Version2 {
		s.NonIOStorageBytes = getInt(b, 3)
		s.IOStorageBytes = getInt(b, 4)
		s.UploadMBps = getFloat(b, 5)
		s.DownloadMBps = getFloat(b, 6)
	}
	return s
}

func putInt(b []byte, field int, v int64) {
	binary.BigEndian.PutUint64(b[field*bytesPerField:], uint64(v))
}

func putFloat(b []byte, field int, v float64) {
	binary.BigEndian.PutUint64(b[field*bytesPerField:], math.Float64bits(v))
}

func getInt(b []byte, field int) int64 {
	return int64(binary.BigEndian.Uint64(b[field*bytesPerField:]))
}

func getFloat(b []byte, field int) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(b[field*bytesPerField:]))
}
