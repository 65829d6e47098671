package sampler

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// readCounter reads a single integer cgroup pseudo-file. A missing file means
// the container's cgroup is not there yet and is reported as ok == false.
func readCounter(path string) (value int64, ok bool, err error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "read %s", path)
	}

	value, err = strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "parse %s", path)
	}
	return value, true, nil
}

// CPU samples the cumulative cpu time of a cgroup v1 cpuacct controller and
// turns consecutive readings into a utilization.
type CPU struct {
	path  string
	clock Clock

	haveLast  bool
	lastNanos int64
	lastCPU   int64
}

func NewCPU(cgroupRoot, container string, clock Clock) *CPU {
	return &CPU{
		path:  filepath.Join(cgroupRoot, "cpu", container, "cpuacct.usage"),
		clock: clock,
	}
}

// UsageNanos returns the cpu time consumed by the container so far.
func (c *CPU) UsageNanos() (int64, bool, error) {
	return readCounter(c.path)
}

// PercentUsage returns the number of cores the container kept busy, on
// average, since the previous call. The first call, and any call following
// one where the counter was missing, only records a baseline.
func (c *CPU) PercentUsage() (float64, bool, error) {
	now := c.clock.MonotonicNanos()
	cpu, ok, err := c.UsageNanos()
	if err != nil {
		return 0, false, err
	}

	if !ok || !c.haveLast {
		c.lastNanos = now
		c.lastCPU = cpu
		c.haveLast = ok
		return 0, false, nil
	}

	if now == c.lastNanos {
		c.lastCPU = cpu
		return 0, false, nil
	}

	usage := float64(cpu-c.lastCPU) / float64(now-c.lastNanos)

	c.lastNanos = now
	c.lastCPU = cpu

	return usage, true, nil
}

// Memory samples the current usage of a cgroup v1 memory controller.
type Memory struct {
	path string
}

func NewMemory(cgroupRoot, container string) *Memory {
	return &Memory{
		path: filepath.Join(cgroupRoot, "memory", container, "memory.usage_in_bytes"),
	}
}

func (m *Memory) UsageBytes() (int64, bool, error) {
	return readCounter(m.path)
}
