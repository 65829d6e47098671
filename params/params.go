package params

import (
	goflag "flag"
	"time"

	"github.com/blang/semver"
	"github.com/pkg/errors"
)

const (
	Version = "0.2.0"

	DefaultCgroupRoot     = "/sys/fs/cgroup"
	DefaultDockerEndpoint = "unix:///var/run/docker.sock"
	DefaultInterval       = 5 * time.Second
	DefaultLogLevel       = "info"
	DefaultS3Region       = "us-east-1"
)

var (
	params = newParams()
)

// Params are process-wide settings. Per-container inputs (paths, interface
// names) are command flags, not params.
type Params struct {
	CgroupRoot     string
	DockerEndpoint string
	Interval       time.Duration
	LogLevel       string
	S3Region       string
	Version        semver.Version

	flags *goflag.FlagSet
}

func newParams() *Params {
	p := &Params{
		Version: semver.MustParse(Version),
		flags:   goflag.NewFlagSet("usagemon", goflag.ContinueOnError),
	}

	p.flags.StringVar(&p.CgroupRoot, "cgroup-root", DefaultCgroupRoot, "mount point of the cgroup v1 hierarchies")
	p.flags.StringVar(&p.DockerEndpoint, "docker-endpoint", DefaultDockerEndpoint, "docker endpoint used to discover containers")
	p.flags.DurationVar(&p.Interval, "interval", DefaultInterval, "pause between the end of one measurement and the start of the next")
	p.flags.StringVar(&p.LogLevel, "log-level", DefaultLogLevel, "log level")
	p.flags.StringVar(&p.S3Region, "s3-region", DefaultS3Region, "region of the bucket logs are archived to")
	return p
}

func Get() *Params {
	return params
}

// Parse reads settings from args first and then from USAGEMON_* variables in
// environ for anything args left unset.
func Parse(args, environ []string) error {
	return params.parse(args, environ)
}

func (p *Params) parse(args, environ []string) error {
	fs := FlagSetFromGoFlagSet(p.flags, EnvPrefix)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parse params")
	}
	if err := fs.ParseEnv(environ); err != nil {
		return errors.Wrap(err, "parse params from environment")
	}
	if p.Interval <= 0 {
		return errors.Errorf("interval must be positive, got %s", p.Interval)
	}
	return nil
}
