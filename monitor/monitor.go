// Package monitor periodically samples one container's resource usage and
// appends it to a usage log.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/replicatedcom/usagemon/params"
	"github.com/replicatedcom/usagemon/sampler"
	"github.com/replicatedcom/usagemon/sink"
	"github.com/replicatedcom/usagemon/usage"
)

// Config names the container and where its resources are accounted.
type Config struct {
	// Container is the cgroup name under each controller, e.g. docker/<id>.
	Container string
	Overlay   string
	// IOVolume is optional.
	IOVolume string
	Veth     string
	Output   string

	CgroupRoot string
	Interval   time.Duration
}

func (c *Config) validate() error {
	switch {
	case c.Container == "":
		return errors.New("container is required")
	case c.Overlay == "":
		return errors.New("overlay path is required")
	case c.Veth == "":
		return errors.New("veth interface is required")
	case c.Output == "":
		return errors.New("output path is required")
	}
	if c.CgroupRoot == "" {
		c.CgroupRoot = params.DefaultCgroupRoot
	}
	if c.Interval <= 0 {
		c.Interval = params.DefaultInterval
	}
	return nil
}

type cpuSampler interface {
	PercentUsage() (float64, bool, error)
}

type memorySampler interface {
	UsageBytes() (int64, bool, error)
}

type diskSampler interface {
	Usage(ctx context.Context) (sampler.DiskUsage, error)
}

type networkSampler interface {
	Bandwidth(ctx context.Context) (upload, download float64, ok bool, err error)
}

type Option func(*Monitor)

func WithClock(clock sampler.Clock) Option {
	return func(m *Monitor) { m.clock = clock }
}

// WithCounterQuery replaces the iptables invocation.
func WithCounterQuery(query sampler.CounterQuery) Option {
	return func(m *Monitor) { m.query = query }
}

// WithCounterLock replaces the process-wide counter lock.
func WithCounterLock(lock *sampler.CounterLock) Option {
	return func(m *Monitor) { m.lock = lock }
}

type Monitor struct {
	cfg   Config
	clock sampler.Clock
	query sampler.CounterQuery
	lock  *sampler.CounterLock

	cpu     cpuSampler
	memory  memorySampler
	disk    diskSampler
	network networkSampler
	out     *sink.File

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// New opens the output and writes its header. The monitor is idle until
// Start.
func New(cfg Config, opts ...Option) (*Monitor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:   cfg,
		clock: sampler.SystemClock(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.cpu = sampler.NewCPU(cfg.CgroupRoot, cfg.Container, m.clock)
	m.memory = sampler.NewMemory(cfg.CgroupRoot, cfg.Container)
	m.disk = sampler.NewDisk(cfg.Overlay, cfg.IOVolume)
	m.network = sampler.NewNetwork(cfg.Veth, m.query, m.lock, m.clock)

	out, err := sink.Open(cfg.Output, usage.CurrentVersion)
	if err != nil {
		return nil, errors.Wrapf(err, "monitor %s", cfg.Container)
	}
	m.out = out
	return m, nil
}

func (m *Monitor) Container() string {
	return m.cfg.Container
}

func (m *Monitor) Output() string {
	return m.out.Path()
}

// Measure takes one sample and appends it. Nothing is written when any
// reading is not available yet.
func (m *Monitor) Measure(ctx context.Context) error {
	now := m.clock.WallMsecs()

	memory, ok, err := m.memory.UsageBytes()
	if err != nil {
		return errors.Wrap(err, "memory usage")
	}
	cpu, cpuOK, err := m.cpu.PercentUsage()
	if err != nil {
		return errors.Wrap(err, "cpu usage")
	}
	if !ok || !cpuOK {
		return nil
	}

	disk, err := m.disk.Usage(ctx)
	if err != nil {
		return err
	}
	upload, download, ok, err := m.network.Bandwidth(ctx)
	if err != nil {
		return errors.Wrap(err, "network bandwidth")
	}
	if !ok {
		return nil
	}

	return m.out.Append(usage.Sample{
		TimeMsecs:         now,
		MemoryBytes:       memory,
		CPUUsage:          cpu,
		NonIOStorageBytes: disk.NonIOBytes,
		IOStorageBytes:    disk.IOBytes,
		UploadMBps:        upload,
		DownloadMBps:      download,
	})
}
