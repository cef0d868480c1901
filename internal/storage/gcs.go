package storage

import (
	"context"
	"fmt"
	"path"

	gcs "cloud.google.com/go/storage"
)

// GCS stores clips as objects in a Google Cloud Storage bucket. Object
// writes are streamed; cancelling the writer's context discards the upload.
type GCS struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCS uses application default credentials.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

func (g *GCS) key(name string) string {
	return path.Join(g.prefix, name)
}

func (g *GCS) Open(ctx context.Context, name string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wctx, cancel := context.WithCancel(ctx)
	w := g.client.Bucket(g.bucket).Object(g.key(name)).NewWriter(wctx)
	w.ContentType = "audio/wav"
	return &gcsHandle{w: w, cancel: cancel}, nil
}

func (g *GCS) Ping(ctx context.Context) error {
	if _, err := g.client.Bucket(g.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("bucket gs://%s is not reachable: %w", g.bucket, err)
	}
	return nil
}

func (g *GCS) Location(name string) string {
	return "gs://" + g.bucket + "/" + g.key(name)
}

func (g *GCS) Close() error {
	return g.client.Close()
}

type gcsHandle struct {
	w      *gcs.Writer
	cancel context.CancelFunc
	done   bool
}

func (h *gcsHandle) Write(p []byte) (int, error) {
	return h.w.Write(p)
}

func (h *gcsHandle) Close() error {
	if h.done {
		return nil
	}
	h.done = true
	defer h.cancel()
	return h.w.Close()
}

func (h *gcsHandle) Abort() error {
	if h.done {
		return nil
	}
	h.done = true
	h.cancel()
	// The writer reports the cancellation; nothing was committed.
	_ = h.w.Close()
	return nil
}
