// Package usage defines the resource usage log format: an 8 byte big-endian
// schema version followed by fixed-width big-endian records, one per
// measurement.
package usage

const (
	// Version1 records carry time, memory and cpu.
	Version1 int64 = 1
	// Version2 records add storage and network bandwidth.
	Version2 int64 = 2

	// CurrentVersion is the version writers use.
	CurrentVersion = Version2

	HeaderSize    = 8
	RecordSizeV1  = 24
	RecordSizeV2  = 56
	bytesPerField = 8
)

// Sample is one measurement of a container.
type Sample struct {
	TimeMsecs   int64
	MemoryBytes int64
	// CPUUsage is the average number of cores busy since the previous sample.
	CPUUsage float64

	NonIOStorageBytes int64
	IOStorageBytes    int64
	UploadMBps        float64
	DownloadMBps      float64
}

// Table is a decoded log file.
type Table struct {
	Version int64
	Samples []Sample
}

var (
	columnsV1 = []string{
		"time_msecs",
		"memory_in_bytes",
		"cpu_usage",
	}
	columnsV2 = append(append([]string{}, columnsV1...),
		"non_io_storage_in_bytes",
		"io_storage_in_bytes",
		"network_bandwidth_upload_in_bytes_per_second",
		"network_bandwidth_download_in_bytes_per_second",
	)
)

// Columns names the fields present in every record of the table.
func (t *Table) Columns() []string {
	if t.Version >= Version2 {
		return append([]string{}, columnsV2...)
	}
	return append([]string{}, columnsV1...)
}

func (t *Table) Len() int {
	return len(t.Samples)
}
