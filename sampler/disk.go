package sampler

import (
	"context"

	"github.com/moby/sys/mountinfo"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/replicatedcom/usagemon/log"
)

// UsedBytesFunc returns the bytes in use on the filesystem holding path.
type UsedBytesFunc func(ctx context.Context, path string) (uint64, error)

func statfsUsedBytes(ctx context.Context, path string) (uint64, error) {
	stat, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return stat.Used, nil
}

// DiskUsage splits a container's storage between its IO volume and the rest.
type DiskUsage struct {
	OverlayBytes int64
	IOBytes      int64
	NonIOBytes   int64
}

type Disk struct {
	overlay  string
	ioVolume string
	attached bool
	usedFn   UsedBytesFunc
}

// NewDisk samples the overlay path and, when ioVolume is not empty, the IO
// volume. Whether the IO volume is its own mount point is decided once here.
func NewDisk(overlay, ioVolume string) *Disk {
	d := &Disk{
		overlay:  overlay,
		ioVolume: ioVolume,
		usedFn:   statfsUsedBytes,
	}
	if ioVolume != "" {
		mounted, err := mountinfo.Mounted(ioVolume)
		if err != nil {
			log.Warningf("Failed to check if %s is a mount point: %v", ioVolume, err)
		}
		d.attached = mounted
	}
	return d
}

// Attached reports whether the IO volume is a separate mount point.
func (d *Disk) Attached() bool {
	return d.attached
}

func (d *Disk) OverlayUsedBytes(ctx context.Context) (int64, error) {
	used, err := d.usedFn(ctx, d.overlay)
	if err != nil {
		return 0, errors.Wrapf(err, "disk usage of overlay %s", d.overlay)
	}
	return int64(used), nil
}

func (d *Disk) IOUsedBytes(ctx context.Context) (int64, error) {
	if d.ioVolume == "" {
		return 0, nil
	}
	used, err := d.usedFn(ctx, d.ioVolume)
	if err != nil {
		return 0, errors.Wrapf(err, "disk usage of io volume %s", d.ioVolume)
	}
	return int64(used), nil
}

// Usage reads both filesystems. When the IO volume lives inside the overlay
// mount its bytes are already counted there and are subtracted out.
func (d *Disk) Usage(ctx context.Context) (DiskUsage, error) {
	overlay, err := d.OverlayUsedBytes(ctx)
	if err != nil {
		return DiskUsage{}, err
	}
	io, err := d.IOUsedBytes(ctx)
	if err != nil {
		return DiskUsage{}, err
	}

	u := DiskUsage{
		OverlayBytes: overlay,
		IOBytes:      io,
		NonIOBytes:   overlay,
	}
	if !d.attached {
		u.NonIOBytes = overlay - io
	}
	return u, nil
}
