// Package resolve turns opaque resource handles into fetchable URIs
// plus an optional size hint.
package resolve

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/local/creddispatcher/internal/jobs"
)

// Resolved is a directly fetchable location for a handle.
type Resolved struct {
	URI      string
	SizeHint uint64 // 0 when unknown
	Name     string
}

// Options configures the resolver.
type Options struct {
	// Bucket used for bare s3 keys (handles without an s3://bucket/ prefix
	// are not rewritten; only explicit s3:// handles go through S3).
	Bucket     string
	PresignTTL time.Duration
	HTTPClient *http.Client
}

// Resolver supports http(s)://, file:// and s3://bucket/key handles.
// The S3 client is built lazily on the first s3 handle.
type Resolver struct {
	opts Options

	mu sync.Mutex
	s3 *s3.Client
}

func New(opts Options) *Resolver {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{opts: opts}
}

// Resolve maps handle to a fetchable URI. Failures come back wrapped in
// jobs.ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, handle string) (Resolved, error) {
	switch {
	case strings.HasPrefix(handle, "http://") || strings.HasPrefix(handle, "https://"):
		return r.resolveHTTP(ctx, handle)
	case strings.HasPrefix(handle, "file://"):
		return r.resolveFile(handle)
	case strings.HasPrefix(handle, "s3://"):
		return r.resolveS3(ctx, handle)
	default:
		return Resolved{}, &jobs.ResolutionError{Handle: handle, Err: fmt.Errorf("unrecognized handle scheme")}
	}
}

func (r *Resolver) resolveHTTP(ctx context.Context, handle string) (Resolved, error) {
	res := Resolved{URI: handle, Name: nameFromPath(handle)}
	// Size hint via HEAD; servers without one are fine.
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, handle, nil)
	if err != nil {
		return Resolved{}, &jobs.ResolutionError{Handle: handle, Err: err}
	}
	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("handle", handle).Msg("HEAD failed; proceeding without size hint")
		return res, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && resp.ContentLength > 0 {
		res.SizeHint = uint64(resp.ContentLength)
	}
	return res, nil
}

func (r *Resolver) resolveFile(handle string) (Resolved, error) {
	p := strings.TrimPrefix(handle, "file://")
	fi, err := os.Stat(p)
	if err != nil {
		return Resolved{}, &jobs.ResolutionError{Handle: handle, Err: err}
	}
	return Resolved{URI: handle, SizeHint: uint64(fi.Size()), Name: fi.Name()}, nil
}

func (r *Resolver) resolveS3(ctx context.Context, handle string) (Resolved, error) {
	bucket, key, err := splitS3(handle)
	if err != nil {
		return Resolved{}, &jobs.ResolutionError{Handle: handle, Err: err}
	}
	cli, err := r.s3Client(ctx)
	if err != nil {
		return Resolved{}, &jobs.ResolutionError{Handle: handle, Err: err}
	}

	head, err := cli.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return Resolved{}, &jobs.ResolutionError{Handle: handle, Err: err}
	}
	var size uint64
	if head.ContentLength != nil && *head.ContentLength > 0 {
		size = uint64(*head.ContentLength)
	}

	presigner := s3.NewPresignClient(cli)
	signed, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key},
		s3.WithPresignExpires(r.opts.PresignTTL))
	if err != nil {
		return Resolved{}, &jobs.ResolutionError{Handle: handle, Err: err}
	}

	log.Debug().Str("bucket", bucket).Str("key", key).Uint64("size", size).Msg("presigned s3 object")
	return Resolved{URI: signed.URL, SizeHint: size, Name: path.Base(key)}, nil
}

func (r *Resolver) s3Client(ctx context.Context) (*s3.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s3 != nil {
		return r.s3, nil
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	r.s3 = s3.NewFromConfig(cfg)
	return r.s3, nil
}

func splitS3(handle string) (bucket, key string, err error) {
	p := strings.TrimPrefix(handle, "s3://")
	slash := strings.Index(p, "/")
	if slash <= 0 || slash == len(p)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", handle)
	}
	return p[:slash], p[slash+1:], nil
}

func nameFromPath(uri string) string {
	trimmed := uri
	if i := strings.Index(trimmed, "?"); i >= 0 {
		trimmed = trimmed[:i]
	}
	base := path.Base(trimmed)
	if base == "." || base == "/" {
		return "download"
	}
	return base
}
