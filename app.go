package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/replicatedcom/usagemon/archive"
	"github.com/replicatedcom/usagemon/discover"
	"github.com/replicatedcom/usagemon/log"
	"github.com/replicatedcom/usagemon/monitor"
	"github.com/replicatedcom/usagemon/params"
	"github.com/replicatedcom/usagemon/usage"
)

func main() {
	if err := params.Parse(nil, os.Environ()); err != nil {
		log.Error(err)
		os.Exit(2)
	}
	p := params.Get()

	app := cli.NewApp()
	app.Name = "usagemon"
	app.Usage = "Record the resource usage of a container."
	app.Version = p.Version.String()

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "log-level", Value: p.LogLevel, Usage: "log level"},
		cli.StringFlag{Name: "cgroup-root", Value: p.CgroupRoot, Usage: "mount point of the cgroup v1 hierarchies"},
		cli.DurationFlag{Name: "interval", Value: p.Interval, Usage: "pause between measurements"},
		cli.StringFlag{Name: "docker-endpoint", Value: p.DockerEndpoint, Usage: "docker endpoint"},
		cli.StringFlag{Name: "s3-region", Value: p.S3Region, Usage: "region of the archive bucket"},
	}
	app.Before = func(c *cli.Context) error {
		p.LogLevel = c.String("log-level")
		p.CgroupRoot = c.String("cgroup-root")
		p.Interval = c.Duration("interval")
		p.DockerEndpoint = c.String("docker-endpoint")
		p.S3Region = c.String("s3-region")
		return log.SetLevel(p.LogLevel)
	}

	app.Commands = []cli.Command{
		{
			Name:   "monitor",
			Usage:  "sample a container until interrupted",
			Action: handlerMonitor,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "container", Usage: "cgroup name of the container, e.g. docker/<id>"},
				cli.StringFlag{Name: "overlay", Usage: "overlay filesystem of the container"},
				cli.StringFlag{Name: "io-volume", Usage: "optional io volume mount"},
				cli.StringFlag{Name: "veth", Usage: "host side veth of the container"},
				cli.StringFlag{Name: "output", Usage: "usage log to write"},
				cli.StringFlag{Name: "docker-container", Usage: "resolve container and overlay from docker"},
				cli.StringFlag{Name: "s3-bucket", Usage: "archive the log to this bucket when done"},
				cli.StringFlag{Name: "s3-prefix", Usage: "key prefix inside the archive bucket"},
			},
		},
		{
			Name:      "decode",
			Usage:     "print the records of a usage log",
			ArgsUsage: "FILE",
			Action:    handlerDecode,
		},
		{
			Name:  "version",
			Usage: "print the version",
			Action: func(c *cli.Context) error {
				fmt.Println(p.Version.String())
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func handlerMonitor(c *cli.Context) error {
	p := params.Get()
	cfg := monitor.Config{
		Container:  c.String("container"),
		Overlay:    c.String("overlay"),
		IOVolume:   c.String("io-volume"),
		Veth:       c.String("veth"),
		Output:     c.String("output"),
		CgroupRoot: p.CgroupRoot,
		Interval:   p.Interval,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if id := c.String("docker-container"); id != "" {
		client, err := discover.NewClient(p.DockerEndpoint)
		if err != nil {
			return err
		}
		target, err := discover.Resolve(ctx, client, id)
		if err != nil {
			return err
		}
		if cfg.Container == "" {
			cfg.Container = target.ContainerName
		}
		if cfg.Overlay == "" {
			cfg.Overlay = target.OverlayPath
		}
	}

	m, err := monitor.New(cfg)
	if err != nil {
		return err
	}

	log.Infof("Monitoring %s every %s into %s", m.Container(), cfg.Interval, m.Output())
	m.Start(ctx)
	<-ctx.Done()

	if err := m.Stop(); err != nil {
		return errors.Wrapf(err, "stop monitor for %s", m.Container())
	}
	log.Debugf("Stopped monitoring %s", m.Container())

	bucket := c.String("s3-bucket")
	if bucket == "" {
		return nil
	}
	a, err := archive.New(p.S3Region, bucket, c.String("s3-prefix"))
	if err != nil {
		return err
	}
	_, err = a.Upload(context.Background(), m.Output(), m.Container())
	return err
}

func handlerDecode(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("decode takes exactly one FILE", 2)
	}

	table, err := usage.DecodeFile(c.Args().First())
	if err != nil {
		return err
	}
	if table == nil {
		fmt.Println("no data")
		return nil
	}

	fmt.Printf("schema version %d, %d records\n", table.Version, table.Len())
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if table.Version < usage.Version2 {
		fmt.Fprintln(w, "TIME\tMEMORY\tCPU")
		for _, s := range table.Samples {
			fmt.Fprintf(w, "%s\t%s\t%.3f\n", formatMsecs(s.TimeMsecs), units.BytesSize(float64(s.MemoryBytes)), s.CPUUsage)
		}
		return nil
	}

	fmt.Fprintln(w, "TIME\tMEMORY\tCPU\tSTORAGE\tIO STORAGE\tUPLOAD MB/s\tDOWNLOAD MB/s")
	for _, s := range table.Samples {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%s\t%s\t%.3f\t%.3f\n",
			formatMsecs(s.TimeMsecs),
			units.BytesSize(float64(s.MemoryBytes)),
			s.CPUUsage,
			units.BytesSize(float64(s.NonIOStorageBytes)),
			units.BytesSize(float64(s.IOStorageBytes)),
			s.UploadMBps,
			s.DownloadMBps,
		)
	}
	return nil
}

func formatMsecs(msecs int64) string {
	return time.Unix(0, msecs*int64(time.Millisecond)).UTC().Format(time.RFC3339Nano)
}
