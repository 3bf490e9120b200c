// Package reportfiles stores uploaded result documents in S3.
package reportfiles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/hmpv-lab-platform/pkg/logging"
)

var (
	// ErrDisabled is returned when no bucket is configured.
	ErrDisabled = errors.New("reportfiles: storage not configured")
	ErrNotFound = errors.New("reportfiles: file not found")
)

const urlScheme = "s3://"

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store keeps report attachments under reports/<appointment>/<file>.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

// NewStore creates a Store. With an empty bucket every call fails with ErrDisabled.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger, now: time.Now}
}

func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// File is a stored attachment.
type File struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// ManifestEntry is one line of the monthly upload audit log.
type ManifestEntry struct {
	AppointmentID string `json:"appointment_id"`
	Key           string `json:"key"`
	ContentType   string `json:"content_type"`
	Size          int64  `json:"size"`
	UploadedAt    string `json:"uploaded_at"`
}

// Put uploads the document for an appointment and returns its s3:// URL.
func (s *Store) Put(ctx context.Context, appointmentID, filename, contentType string, data []byte) (*File, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	name := sanitizeFilename(filename)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := fmt.Sprintf("reports/%s/%s", appointmentID, name)

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("reportfiles: s3 put %s: %w", key, err)
	}
	file := &File{
		Key:         key,
		URL:         urlScheme + s.bucket + "/" + key,
		ContentType: contentType,
		Size:        int64(len(data)),
	}
	s.logger.Info("report file stored", "appointment_id", appointmentID, "s3_key", key, "size", file.Size)

	if err := s.appendManifest(ctx, ManifestEntry{
		AppointmentID: appointmentID,
		Key:           key,
		ContentType:   contentType,
		Size:          file.Size,
		UploadedAt:    s.now().UTC().Format(time.RFC3339),
	}); err != nil {
		// the file itself is stored
		s.logger.Warn("failed to append upload manifest", "error", err, "s3_key", key)
	}
	return file, nil
}

// Open streams a stored file. The caller closes the reader.
func (s *Store) Open(ctx context.Context, fileURL string) (io.ReadCloser, string, error) {
	if !s.Enabled() {
		return nil, "", ErrDisabled
	}
	key, ok := s.KeyFromURL(fileURL)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, fileURL)
	}
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, "", fmt.Errorf("reportfiles: s3 get %s: %w", key, err)
	}
	return out.Body, aws.ToString(out.ContentType), nil
}

// KeyFromURL extracts the object key from a URL produced by Put for this bucket.
func (s *Store) KeyFromURL(fileURL string) (string, bool) {
	rest, ok := strings.CutPrefix(fileURL, urlScheme+s.bucket+"/")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

// IsStored reports whether fileURL points into object storage.
func IsStored(fileURL string) bool {
	return strings.HasPrefix(fileURL, urlScheme)
}

// appendManifest appends a JSONL line to the monthly manifest. S3 has no
// append, so this is a read-modify-write.
func (s *Store) appendManifest(ctx context.Context, entry ManifestEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("reportfiles: marshal manifest entry: %w", err)
	}
	now := s.now().UTC()
	manifestKey := fmt.Sprintf("reports/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	switch {
	case err == nil:
		existing, _ = io.ReadAll(getResp.Body)
		getResp.Body.Close()
	case !isNotFound(err):
		return fmt.Errorf("reportfiles: s3 get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("reportfiles: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "StatusCode: 404")
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "report.pdf"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
