// Package dockerclient wraps the Docker daemon API for the operations the
// CLI needs: loading exported layouts into the daemon and checking the
// result landed.
package dockerclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	moby "github.com/docker/docker/client"
	"github.com/docker/go-sdk/client"
)

type dockerClient struct {
	client client.SDKClient
}

type DockerClient interface {
	ImageExists(ctx context.Context, imageRef string) bool
	Load(ctx context.Context, archive io.Reader) error
}

func NewDockerClient() (*dockerClient, error) {
	client, err := client.New(
		context.Background(),
		client.WithLogger(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))),
	)
	if err != nil {
		return nil, err
	}

	return &dockerClient{
		client: client,
	}, nil
}

func (dc *dockerClient) ImageExists(ctx context.Context, imageRef string) bool {
	_, err := dc.client.ImageInspect(ctx, imageRef)

	return err == nil
}

// Load streams an exported layout tar into the daemon.
func (dc *dockerClient) Load(ctx context.Context, archive io.Reader) error {
	resp, err := dc.client.ImageLoad(ctx, archive, moby.ImageLoadWithQuiet(true))
	if err != nil {
		return fmt.Errorf("image load: %w", err)
	}
	defer resp.Body.Close()

	// The daemon reports progress in the body; drain it so the load
	// completes before we return.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("image load: drain response: %w", err)
	}

	return nil
}
