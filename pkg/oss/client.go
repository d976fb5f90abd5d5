/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

// Package oss issues presigned PUT URLs so clients upload audio
// straight to object storage, bypassing the API process.
package oss

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"k8s.io/klog/v2"

	"github.com/PoetCoderJun/video-auto-cut/pkg/config"
	"github.com/PoetCoderJun/video-auto-cut/pkg/utils/stringutil"
)

// Interface is what handlers depend on; tests swap in a fake.
type Interface interface {
	PresignPutObject(key string, expire time.Duration) (string, error)
	DownloadObject(ctx context.Context, key, destPath string) (int64, error)
	BuildObjectKeyForJob(jobID, suffix string) string
}

var (
	once     sync.Once
	instance Interface
)

type Client struct {
	svc    *s3.S3
	bucket string
	prefix string
}

// NewClient returns the process-wide OSS client, or nil when object
// storage is not configured (direct multipart upload still works).
func NewClient() Interface {
	once.Do(func() {
		cli, err := newClient()
		if err != nil {
			klog.ErrorS(err, "object storage disabled")
			return
		}
		instance = cli
		klog.Infof("init oss client successfully, bucket: %s", cli.bucket)
	})
	return instance
}

func newClient() (*Client, error) {
	endpoint := config.GetOSSEndpoint()
	bucket := config.GetOSSBucket()
	accessKey := config.GetOSSAccessKeyID()
	secretKey := config.GetOSSAccessKeySecret()
	if endpoint == "" || bucket == "" {
		return nil, fmt.Errorf("oss not configured: OSS_ENDPOINT and OSS_BUCKET required")
	}
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("oss credentials missing: OSS_ACCESS_KEY_ID and OSS_ACCESS_KEY_SECRET required")
	}

	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(ensureHTTPSEndpoint(endpoint)),
		Region:           aws.String("us-east-1"),
		Credentials:      credentials.NewStaticCredentials(accessKey, secretKey, ""),
		S3ForcePathStyle: aws.Bool(false),
	})
	if err != nil {
		return nil, err
	}
	return &Client{
		svc:    s3.New(sess),
		bucket: bucket,
		prefix: config.GetOSSAudioPrefix(),
	}, nil
}

// PresignPutObject returns a URL the client can PUT the object to.
func (c *Client) PresignPutObject(key string, expire time.Duration) (string, error) {
	req, _ := c.svc.PutObjectRequest(&s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(expire)
	if err != nil {
		return "", fmt.Errorf("failed to presign put for %s: %v", key, err)
	}
	return url, nil
}

// DownloadObject streams an uploaded object to destPath and returns
// its size. Used when a client finished a direct-to-storage upload
// and the pipeline needs the audio on local disk.
func (c *Client) DownloadObject(ctx context.Context, key, destPath string) (int64, error) {
	out, err := c.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch object %s: %v", key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, err
	}
	dst, err := os.Create(destPath)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(dst, out.Body)
	if cErr := dst.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(destPath)
		return 0, fmt.Errorf("failed to store object %s: %v", key, err)
	}
	return written, nil
}

// BuildObjectKeyForJob builds a collision-free key under the audio
// prefix, e.g. video-auto-cut/asr/job_ab12/20260824/153000/audio_9f2c01ab3d.wav
func (c *Client) BuildObjectKeyForJob(jobID, suffix string) string {
	return BuildObjectKey(c.prefix, jobID, suffix)
}

// BuildObjectKey is the pure key builder, exported for tests and for
// callers that carry their own prefix.
func BuildObjectKey(prefix, jobID, suffix string) string {
	stamp := time.Now().UTC().Format("20060102/150405")
	suffix = strings.ToLower(strings.TrimSpace(suffix))
	if suffix == "" || !strings.HasPrefix(suffix, ".") {
		suffix = ".wav"
	}
	parts := []string{strings.Trim(prefix, "/")}
	if sanitized := sanitize(jobID); sanitized != "" {
		parts = append(parts, sanitized)
	}
	parts = append(parts, stamp)
	return strings.Join(parts, "/") + "/audio_" + stringutil.RandHex(10) + suffix
}

func ensureHTTPSEndpoint(endpoint string) string {
	trimmed := strings.TrimSpace(endpoint)
	if strings.HasPrefix(trimmed, "https://") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "http://")
	return "https://" + trimmed
}

func sanitize(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
