// Package s3util archives downloaded session exports to S3 and hands back
// a time-limited link to them.
package s3util

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// projectTag is the URL-encoded S3 object tagging string for cost allocation.
const projectTag = "Project=mentor-metrics"

// DefaultLinkExpiry is how long presigned export links stay valid.
const DefaultLinkExpiry = 24 * time.Hour

// ObjectPutter is the subset of *s3.Client used for archiving.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// GetPresigner is the subset of *s3.PresignClient used for links.
type GetPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Archiver stores exports under bucket/prefix/<session id>/<file name>.
type Archiver struct {
	client    ObjectPutter
	presigner GetPresigner
	bucket    string
	prefix    string
}

// NewArchiver creates an Archiver.
func NewArchiver(client ObjectPutter, presigner GetPresigner, bucket, prefix string) *Archiver {
	return &Archiver{client: client, presigner: presigner, bucket: bucket, prefix: prefix}
}

// Key returns the object key for a session export file.
func (a *Archiver) Key(sessionID, fileName string) string {
	return path.Join(strings.Trim(a.prefix, "/"), sessionID, fileName)
}

// ArchiveFile uploads localPath and returns its object key. contentEncoding
// may be empty.
func (a *Archiver) ArchiveFile(ctx context.Context, sessionID, localPath, contentType, contentEncoding string) (string, error) {
	key := a.Key(sessionID, filepath.Base(localPath))

	log.Debug().
		Str("bucket", a.bucket).
		Str("key", key).
		Str("localPath", localPath).
		Msg("Archiving export to S3")

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	in := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
		Tagging:     aws.String(projectTag),
		Metadata:    map[string]string{"session-id": sessionID},
	}
	if contentEncoding != "" {
		in.ContentEncoding = aws.String(contentEncoding)
	}
	if _, err := a.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("failed to upload export to S3: %w", err)
	}

	log.Info().Str("key", key).Msg("Export archived to S3")
	return key, nil
}

// GeneratePresignedURL creates a pre-signed GET URL for an archived object.
func (a *Archiver) GeneratePresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	result, err := a.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket), Key: aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}
