// Package remote opens dataset sources and result sinks by location: local
// paths, stdin/stdout, HTTP(S) URLs and S3 objects.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Stdio is the location that stands for stdin or stdout.
const Stdio = "-"

// Config carries S3 authentication and HTTP settings.
type Config struct {
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3Endpoint  string // optional S3-compatible endpoint
	HTTPTimeout time.Duration
}

// Scheme identifies how a location is opened.
type Scheme string

const (
	SchemeLocal Scheme = "local"
	SchemeStdio Scheme = "stdio"
	SchemeFile  Scheme = "file"
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
	SchemeS3    Scheme = "s3"
)

// DetectScheme detects the scheme of a location string.
func DetectScheme(location string) Scheme {
	lower := strings.ToLower(location)
	switch {
	case location == Stdio:
		return SchemeStdio
	case strings.HasPrefix(lower, "s3://"):
		return SchemeS3
	case strings.HasPrefix(lower, "https://"):
		return SchemeHTTPS
	case strings.HasPrefix(lower, "http://"):
		return SchemeHTTP
	case strings.HasPrefix(lower, "file://"):
		return SchemeFile
	default:
		return SchemeLocal
	}
}

// IsRemote reports whether the location is fetched over the network.
func IsRemote(location string) bool {
	switch DetectScheme(location) {
	case SchemeHTTP, SchemeHTTPS, SchemeS3:
		return true
	}
	return false
}

// OpenReader opens a reader for the given location.
func OpenReader(ctx context.Context, location string, cfg Config) (io.ReadCloser, error) {
	switch DetectScheme(location) {
	case SchemeStdio:
		return io.NopCloser(os.Stdin), nil
	case SchemeLocal:
		return os.Open(location)
	case SchemeFile:
		return os.Open(strings.TrimPrefix(location, "file://"))
	case SchemeHTTP, SchemeHTTPS:
		return openHTTPReader(ctx, location, cfg)
	case SchemeS3:
		return openS3Reader(ctx, location, cfg)
	default:
		return nil, fmt.Errorf("unsupported location: %s", location)
	}
}

// OpenWriter opens a writer for the given location. An empty location or
// "-" writes to stdout.
func OpenWriter(ctx context.Context, location string, cfg Config) (io.WriteCloser, error) {
	if location == "" {
		return nopWriteCloser{os.Stdout}, nil
	}
	switch DetectScheme(location) {
	case SchemeStdio:
		return nopWriteCloser{os.Stdout}, nil
	case SchemeLocal:
		return createFile(location)
	case SchemeFile:
		return createFile(strings.TrimPrefix(location, "file://"))
	case SchemeHTTP, SchemeHTTPS:
		return nil, fmt.Errorf("HTTP/HTTPS does not support writing")
	case SchemeS3:
		return openS3Writer(ctx, location, cfg)
	default:
		return nil, fmt.Errorf("unsupported location: %s", location)
	}
}

func createFile(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func openHTTPReader(ctx context.Context, url string, cfg Config) (io.ReadCloser, error) {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	client := &http.Client{Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP request returned status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// ParseS3URL parses s3://bucket/key into bucket and key parts.
func ParseS3URL(url string) (bucket, key string, err error) {
	path := url[len("s3://"):]
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid S3 URL: %s", url)
	}
	return parts[0], parts[1], nil
}

func newS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.S3Region != "" {
		opts = append(opts, config.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.S3Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}

func openS3Reader(ctx context.Context, url string, cfg Config) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URL(url)
	if err != nil {
		return nil, err
	}

	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get S3 object: %w", err)
	}

	return resp.Body, nil
}

// s3Writer buffers everything and uploads it on Close.
type s3Writer struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	buf    bytes.Buffer
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("writer is closed")
	}
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

func openS3Writer(ctx context.Context, url string, cfg Config) (io.WriteCloser, error) {
	bucket, key, err := ParseS3URL(url)
	if err != nil {
		return nil, err
	}

	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &s3Writer{ctx: ctx, client: client, bucket: bucket, key: key}, nil
}
