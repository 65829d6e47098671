package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicatedcom/usagemon/sampler"
	"github.com/replicatedcom/usagemon/usage"
)

const mb = 1024 * 1024

type countersQuery struct {
	veth   string
	counts [][2]int64
	calls  int
}

func (q *countersQuery) Query(ctx context.Context) ([]byte, []byte, error) {
	c := q.counts[q.calls]
	q.calls++
	out := "Chain PREROUTING (policy ACCEPT 0 packets, 0 bytes)\n" +
		"    pkts      bytes target     prot opt in     out     source               destination\n" +
		fmt.Sprintf("      10 %10d ACCEPT     all  --  %s  *       0.0.0.0/0            0.0.0.0/0\n", c[0], q.veth) +
		fmt.Sprintf("      10 %10d ACCEPT     all  --  *      %s  0.0.0.0/0            0.0.0.0/0\n", c[1], q.veth)
	return []byte(out), nil, nil
}

func writeCounter(t *testing.T, root, controller, file string, value int64) {
	dir := filepath.Join(root, controller, "job-1")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(strconv.FormatInt(value, 10)+"\n"), 0644))
}

func newSampledMonitor(t *testing.T, clock *fakeClock, query *countersQuery) (*Monitor, string) {
	dir := t.TempDir()
	root := filepath.Join(dir, "cgroup")
	m, err := New(Config{
		Container:  "job-1",
		Overlay:    dir,
		Veth:       query.veth,
		Output:     filepath.Join(dir, "usage.bin"),
		CgroupRoot: root,
	}, WithClock(clock), WithCounterQuery(query), WithCounterLock(sampler.NewCounterLock()))
	require.NoError(t, err)
	t.Cleanup(func() { m.Stop() })
	return m, root
}

func decodeOutput(t *testing.T, m *Monitor) *usage.Table {
	table, err := usage.DecodeFile(m.Output())
	require.NoError(t, err)
	require.NotNil(t, table)
	return table
}

func TestMeasureWithCgroupAndCounters(t *testing.T) {
	clock := &fakeClock{msecs: 1700000000000}
	query := &countersQuery{veth: "veth0", counts: [][2]int64{
		{1000, 2000},
		{1000 + 5*mb, 2000 + 10*mb},
	}}
	m, root := newSampledMonitor(t, clock, query)
	writeCounter(t, root, "memory", "memory.usage_in_bytes", 64*mb)

	// cpu baseline
	writeCounter(t, root, "cpu", "cpuacct.usage", 1e9)
	require.NoError(t, m.Measure(context.Background()))
	assert.Equal(t, 0, decodeOutput(t, m).Len())
	assert.Equal(t, 0, query.calls)

	// network baseline
	clock.msecs += 5000
	writeCounter(t, root, "cpu", "cpuacct.usage", 3.5e9)
	require.NoError(t, m.Measure(context.Background()))
	assert.Equal(t, 0, decodeOutput(t, m).Len())
	assert.Equal(t, 1, query.calls)

	clock.msecs += 5000
	writeCounter(t, root, "cpu", "cpuacct.usage", 8.5e9)
	require.NoError(t, m.Measure(context.Background()))

	table := decodeOutput(t, m)
	assert.Equal(t, usage.Version2, table.Version)
	require.Equal(t, 1, table.Len())
	s := table.Samples[0]
	assert.Equal(t, clock.msecs, s.TimeMsecs)
	assert.Equal(t, int64(64*mb), s.MemoryBytes)
	assert.InDelta(t, 1.0, s.CPUUsage, 1e-9)
	assert.Equal(t, int64(0), s.IOStorageBytes)
	assert.InDelta(t, 1.0, s.UploadMBps, 1e-9)
	assert.InDelta(t, 2.0, s.DownloadMBps, 1e-9)
}

func TestMeasureTakesCPUBaselineWithoutMemory(t *testing.T) {
	clock := &fakeClock{msecs: 1700000000000}
	query := &countersQuery{veth: "veth0", counts: [][2]int64{
		{0, 0},
		{5 * mb, 5 * mb},
	}}
	m, root := newSampledMonitor(t, clock, query)

	writeCounter(t, root, "cpu", "cpuacct.usage", 1e9)
	require.NoError(t, m.Measure(context.Background()))
	assert.Equal(t, 0, query.calls)

	// memory shows up: cpu already has its baseline, network takes one
	clock.msecs += 5000
	writeCounter(t, root, "memory", "memory.usage_in_bytes", 32*mb)
	writeCounter(t, root, "cpu", "cpuacct.usage", 6e9)
	require.NoError(t, m.Measure(context.Background()))
	assert.Equal(t, 1, query.calls)
	assert.Equal(t, 0, decodeOutput(t, m).Len())

	clock.msecs += 5000
	writeCounter(t, root, "cpu", "cpuacct.usage", 8.5e9)
	require.NoError(t, m.Measure(context.Background()))

	table := decodeOutput(t, m)
	require.Equal(t, 1, table.Len())
	assert.InDelta(t, 0.5, table.Samples[0].CPUUsage, 1e-9)
	assert.InDelta(t, 1.0, table.Samples[0].UploadMBps, 1e-9)
}

func TestMeasureHonorsInjectedCounterLock(t *testing.T) {
	clock := &fakeClock{msecs: 1700000000000}
	query := &countersQuery{veth: "veth0", counts: [][2]int64{{0, 0}}}
	lock := sampler.NewCounterLock()

	dir := t.TempDir()
	root := filepath.Join(dir, "cgroup")
	m, err := New(Config{
		Container:  "job-1",
		Overlay:    dir,
		Veth:       "veth0",
		Output:     filepath.Join(dir, "usage.bin"),
		CgroupRoot: root,
	}, WithClock(clock), WithCounterQuery(query), WithCounterLock(lock))
	require.NoError(t, err)
	defer m.Stop()

	writeCounter(t, root, "memory", "memory.usage_in_bytes", mb)
	writeCounter(t, root, "cpu", "cpuacct.usage", 1e9)
	require.NoError(t, m.Measure(context.Background()))

	require.NoError(t, lock.Lock(context.Background()))
	defer lock.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	clock.msecs += 5000
	writeCounter(t, root, "cpu", "cpuacct.usage", 2e9)
	err = m.Measure(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, query.calls)
}
