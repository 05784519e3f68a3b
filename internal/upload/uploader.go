// Package upload ships finished recordings to S3-compatible storage.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jmpijll/discrec/internal/config"
	"github.com/jmpijll/discrec/internal/types"
)

const (
	queueSize     = 32
	uploadTimeout = 5 * time.Minute
)

// request is one file queued for upload.
type request struct {
	localPath string
	key       string
	size      int64
}

// Uploader pushes finalized files to a bucket from a single worker.
// Recordings always stay on disk; upload is an off-site copy, so a
// failed upload is logged and skipped, never retried into a stopped
// process.
type Uploader struct {
	cfg    config.UploadConfig
	client *s3.Client

	queue  chan request
	stopCh chan struct{}
	wg     sync.WaitGroup

	stopOnce sync.Once
}

// New creates an uploader and starts its worker.
func New(cfg config.UploadConfig) *Uploader {
	u := &Uploader{
		cfg:    cfg,
		client: newClient(cfg),
		queue:  make(chan request, queueSize),
		stopCh: make(chan struct{}),
	}
	u.wg.Add(1)
	go u.worker()
	return u
}

func newClient(cfg config.UploadConfig) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = region
		},
	}
	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.New(s3.Options{}, options...)
}

// Enqueue queues a finished file. A full queue drops the upload with a
// warning; the local file is unaffected.
func (u *Uploader) Enqueue(path string) {
	info, err := os.Stat(path)
	if err != nil {
		slog.Warn("Cannot stat file for upload", "path", path, "error", err)
		return
	}
	req := request{localPath: path, key: u.objectKey(path), size: info.Size()}
	select {
	case u.queue <- req:
		slog.Info("Queued file for upload", "file", filepath.Base(path), "key", req.key)
	case <-u.stopCh:
	default:
		slog.Warn("Upload queue full, skipping", "file", filepath.Base(path))
	}
}

func (u *Uploader) objectKey(path string) string {
	prefix := strings.Trim(u.cfg.Prefix, "/")
	if prefix == "" {
		prefix = "recordings"
	}
	return prefix + "/" + filepath.Base(path)
}

// worker processes the queue, draining remaining items on shutdown.
func (u *Uploader) worker() {
	defer u.wg.Done()
	for {
		select {
		case <-u.stopCh:
			for {
				select {
				case req := <-u.queue:
					u.upload(req)
				default:
					return
				}
			}
		case req := <-u.queue:
			u.upload(req)
		}
	}
}

func (u *Uploader) upload(req request) {
	ctx, cancel := context.WithTimeoutCause(context.Background(), uploadTimeout, errors.New("s3 upload timeout"))
	defer cancel()

	file, err := os.Open(req.localPath)
	if err != nil {
		slog.Error("Cannot open file for upload", "path", req.localPath, "error", err)
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("Failed to close file after upload", "path", req.localPath, "error", err)
		}
	}()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(req.key),
		Body:          file,
		ContentLength: aws.Int64(req.size),
		ContentType:   aws.String(contentType(req.localPath)),
	})
	if err != nil {
		slog.Error("Upload failed", "key", req.key, "error", err)
		return
	}
	slog.Info("Upload completed", "key", req.key, "bytes", req.size)
}

// Stop drains the queue and stops the worker.
func (u *Uploader) Stop() {
	u.stopOnce.Do(func() { close(u.stopCh) })
	u.wg.Wait()
}

// TestConnection verifies bucket access by writing and deleting a probe
// object.
func (u *Uploader) TestConnection(ctx context.Context) error {
	key := fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano())
	body := strings.NewReader("discrec connection test")
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(int64(body.Len())),
	})
	if err != nil {
		return fmt.Errorf("upload test object: %w", err)
	}
	if _, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		slog.Warn("Failed to delete test object", "key", key, "error", err)
	}
	return nil
}

func contentType(path string) string {
	switch types.Format(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case types.FormatWAV:
		return "audio/wav"
	case types.FormatFLAC:
		return "audio/flac"
	case types.FormatOGG:
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
