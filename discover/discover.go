// Package discover finds the cgroup and overlay of a running Docker container.
package discover

import (
	"context"
	"path"
	"strings"

	docker "github.com/fsouza/go-dockerclient"
	"github.com/pkg/errors"

	"github.com/replicatedcom/usagemon/log"
)

const defaultCgroupParent = "docker"

// Inspector is the part of the Docker client discovery needs.
type Inspector interface {
	InspectContainerWithOptions(opts docker.InspectContainerOptions) (*docker.Container, error)
}

// Target is what a monitor needs to know about a container it did not start.
type Target struct {
	ID string
	// ContainerName is the cgroup path below each controller.
	ContainerName string
	OverlayPath   string
}

func NewClient(endpoint string) (*docker.Client, error) {
	if endpoint == "" {
		return docker.NewClientFromEnv()
	}
	client, err := docker.NewClient(endpoint)
	return client, errors.Wrapf(err, "docker client for %s", endpoint)
}

// Resolve inspects container, an ID or name.
func Resolve(ctx context.Context, inspector Inspector, container string) (*Target, error) {
	c, err := inspector.InspectContainerWithOptions(docker.InspectContainerOptions{
		Context: ctx,
		ID:      container,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "inspect container %s", container)
	}
	if c.State.Pid == 0 || !c.State.Running {
		return nil, errors.Errorf("container %s is not running", container)
	}

	overlay, err := overlayPath(c)
	if err != nil {
		return nil, err
	}

	var parent string
	if c.HostConfig != nil {
		parent = c.HostConfig.CgroupParent
	}

	t := &Target{
		ID:            c.ID,
		ContainerName: cgroupName(parent, c.ID),
		OverlayPath:   overlay,
	}
	log.Debugf("Resolved container %s to cgroup %s and overlay %s", container, t.ContainerName, t.OverlayPath)
	return t, nil
}

func overlayPath(c *docker.Container) (string, error) {
	if c.GraphDriver == nil {
		return "", errors.Errorf("container %s has no graph driver data", c.ID)
	}
	for _, key := range []string{"MergedDir", "UpperDir"} {
		if dir := c.GraphDriver.Data[key]; dir != "" {
			return dir, nil
		}
	}
	return "", errors.Errorf("graph driver %q of container %s exposes no overlay directory", c.GraphDriver.Name, c.ID)
}

// cgroupName follows Docker's naming for the cgroupfs and systemd drivers.
func cgroupName(parent, id string) string {
	parent = strings.Trim(parent, "/")
	if strings.HasSuffix(parent, ".slice") {
		return path.Join(parent, "docker-"+id+".scope")
	}
	if parent == "" {
		parent = defaultCgroupParent
	}
	return path.Join(parent, id)
}
