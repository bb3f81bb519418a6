package docker

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/api/types/image"
)

// imagePuller pulls each image reference at most once per process.
// A failed pull is forgotten so the next run retries it.
type imagePuller struct {
	cli dockerClient

	mu    sync.Mutex
	pulls map[string]*imagePull
}

type imagePull struct {
	once sync.Once
	err  error
}

func newImagePuller(cli dockerClient) *imagePuller {
	return &imagePuller{cli: cli, pulls: make(map[string]*imagePull)}
}

func (p *imagePuller) ensure(ctx context.Context, ref string) error {
	p.mu.Lock()
	pull, ok := p.pulls[ref]
	if !ok {
		pull = &imagePull{}
		p.pulls[ref] = pull
	}
	p.mu.Unlock()

	pull.once.Do(func() {
		pull.err = p.pull(ctx, ref)
	})

	if pull.err != nil {
		p.mu.Lock()
		if p.pulls[ref] == pull {
			delete(p.pulls, ref)
		}
		p.mu.Unlock()
	}
	return pull.err
}

func (p *imagePuller) pull(ctx context.Context, ref string) error {
	reader, err := p.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("consume pull output for %s: %w", ref, err)
	}
	return nil
}
