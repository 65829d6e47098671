package sampler

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/replicatedcom/usagemon/log"
)

const bytesPerMB = 1024 * 1024

// CounterQuery lists the host's per-rule byte counters.
type CounterQuery interface {
	Query(ctx context.Context) (stdout, stderr []byte, err error)
}

// IptablesQuery lists the mangle table, where the container network set up
// one accounting rule per direction and veth.
type IptablesQuery struct {
	Path string
}

func (q IptablesQuery) Query(ctx context.Context) ([]byte, []byte, error) {
	path := q.Path
	if path == "" {
		path = "iptables"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-t", "mangle", "-L", "-v", "-n", "-x", "-w")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, errors.Wrapf(err, "%s failed: %s", path, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

// UnexpectedOutputError reports counter output that does not hold exactly one
// upload and one download rule for the interface.
type UnexpectedOutputError struct {
	Interface string
	Rows      []string
	Reason    string
}

func (e *UnexpectedOutputError) Error() string {
	return fmt.Sprintf("counters for %s: %s: %q", e.Interface, e.Reason, e.Rows)
}

func IsUnexpectedOutput(err error) bool {
	_, ok := errors.Cause(err).(*UnexpectedOutputError)
	return ok
}

// counterRow is one rule in `iptables -L -v -n -x` output:
// pkts bytes target prot opt in out source destination.
type counterRow struct {
	line  string
	bytes int64
	in    string
	out   string
}

func matchingRows(output []byte, veth string) ([]counterRow, error) {
	var rows []counterRow
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 7 || (fields[5] != veth && fields[6] != veth) {
			continue
		}
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, &UnexpectedOutputError{Interface: veth, Rows: []string{line}, Reason: "byte count is not an integer"}
		}
		rows = append(rows, counterRow{line: line, bytes: n, in: fields[5], out: fields[6]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan counters")
	}
	return rows, nil
}

// parseCounters returns the bytes sent by veth to elsewhere and received by
// veth from elsewhere.
func parseCounters(output []byte, veth string) (upload, download int64, err error) {
	rows, err := matchingRows(output, veth)
	if err != nil {
		return 0, 0, err
	}

	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = row.line
	}
	if len(rows) != 2 {
		return 0, 0, &UnexpectedOutputError{Interface: veth, Rows: lines, Reason: fmt.Sprintf("expected 2 rows, got %d", len(rows))}
	}

	var haveUpload, haveDownload bool
	for _, row := range rows {
		switch {
		case row.in == veth && row.out != veth:
			upload, haveUpload = row.bytes, true
		case row.in != veth && row.out == veth:
			download, haveDownload = row.bytes, true
		default:
			return 0, 0, &UnexpectedOutputError{Interface: veth, Rows: []string{row.line}, Reason: "rule matches both directions"}
		}
	}
	if !haveUpload || !haveDownload {
		return 0, 0, &UnexpectedOutputError{Interface: veth, Rows: lines, Reason: "missing upload or download rule"}
	}
	return upload, download, nil
}

// Network turns the byte counters of a veth into bandwidth.
type Network struct {
	veth  string
	query CounterQuery
	lock  *CounterLock
	clock Clock

	haveLast     bool
	lastMsecs    int64
	lastUpload   int64
	lastDownload int64
}

// NewNetwork samples veth. A nil query runs iptables, a nil lock uses
// GlobalCounterLock.
func NewNetwork(veth string, query CounterQuery, lock *CounterLock, clock Clock) *Network {
	if query == nil {
		query = IptablesQuery{}
	}
	if lock == nil {
		lock = GlobalCounterLock()
	}
	return &Network{
		veth:  veth,
		query: query,
		lock:  lock,
		clock: clock,
	}
}

func (n *Network) counters(ctx context.Context) (now, upload, download int64, ok bool, err error) {
	if err := n.lock.Lock(ctx); err != nil {
		return 0, 0, 0, false, err
	}
	defer n.lock.Unlock()

	now = n.clock.WallMsecs()
	stdout, stderr, err := n.query.Query(ctx)
	if err != nil {
		return 0, 0, 0, false, err
	}
	if len(bytes.TrimSpace(stderr)) > 0 {
		log.Errorf("Reading counters for %s: %s", n.veth, strings.TrimSpace(string(stderr)))
		return 0, 0, 0, false, nil
	}

	upload, download, err = parseCounters(stdout, n.veth)
	if err != nil {
		return 0, 0, 0, false, err
	}
	return now, upload, download, true, nil
}

// Bandwidth returns upload and download rates in MB/s since the previous
// call. The first successful call only records a baseline.
func (n *Network) Bandwidth(ctx context.Context) (upload, download float64, ok bool, err error) {
	now, up, down, ok, err := n.counters(ctx)
	if err != nil || !ok {
		return 0, 0, false, err
	}

	if !n.haveLast {
		n.haveLast = true
		n.lastMsecs = now
		n.lastUpload = up
		n.lastDownload = down
		return 0, 0, false, nil
	}

	elapsed := now - n.lastMsecs
	if elapsed == 0 {
		return 0, 0, false, nil
	}
	if elapsed < 0 {
		// The wall clock stepped back.
		n.lastMsecs = now
		n.lastUpload = up
		n.lastDownload = down
		return 0, 0, false, nil
	}

	upload = toMBps(float64(up-n.lastUpload) / float64(elapsed))
	download = toMBps(float64(down-n.lastDownload) / float64(elapsed))

	n.lastMsecs = now
	n.lastUpload = up
	n.lastDownload = down

	return upload, download, true, nil
}

func toMBps(bytesPerMsec float64) float64 {
	return bytesPerMsec / bytesPerMB * 1000
}
