package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"invoicer/internal/logger"
)

const (
	objectTimeFormat = "20060102T150405Z"
	checksumMetadata = "checksum-sha256"
)

// S3Config selects the bucket that holds off-site backup copies.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // MinIO or another S3-compatible service
	AccessKey string
	SecretKey string
	PathStyle bool
}

// ObjectAPI is the subset of *s3.Client the archive uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Archive stores snapshot bodies as <prefix>/backup-<timestamp>.json.
type S3Archive struct {
	client ObjectAPI
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewS3Archive builds an archive from cfg. Static keys are used when both
// are set; otherwise the default AWS credential chain applies.
func NewS3Archive(ctx context.Context, cfg S3Config) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("backup: s3 bucket is not configured")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
	})
	return NewS3ArchiveWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3ArchiveWithClient wraps an existing client.
func NewS3ArchiveWithClient(client ObjectAPI, bucket, prefix string) *S3Archive {
	return &S3Archive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    logger.WithComponent("backup-s3"),
	}
}

// ObjectKey names the object for a snapshot exported at t.
func (a *S3Archive) ObjectKey(t time.Time) string {
	name := "backup-" + t.UTC().Format(objectTimeFormat) + ".json"
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// Put uploads a snapshot body and returns its object key.
func (a *S3Archive) Put(ctx context.Context, body []byte, exportedAt time.Time) (string, error) {
	key := a.ObjectKey(exportedAt)
	hash := sha256.Sum256(body)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			checksumMetadata: hex.EncodeToString(hash[:]),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload backup to s3: %w", err)
	}

	a.log.Info().Str("bucket", a.bucket).Str("key", key).Int("size", len(body)).Msg("Uploaded backup")
	return key, nil
}

// Get downloads a snapshot body. When the object carries a checksum, a
// body that does not match it is rejected with a *FormatError.
func (a *S3Archive) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get backup from s3: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup body: %w", err)
	}

	if want, ok := out.Metadata[checksumMetadata]; ok && want != "" {
		hash := sha256.Sum256(body)
		if got := hex.EncodeToString(hash[:]); !strings.EqualFold(got, want) {
			a.log.Error().Str("key", key).Str("expected", want).Str("actual", got).Msg("Backup checksum mismatch")
			return nil, formatError(fmt.Sprintf("checksum mismatch for %s", key), nil)
		}
	}
	return body, nil
}

// Latest returns the key of the newest backup under the prefix. Keys sort
// chronologically because of the timestamp format.
func (a *S3Archive) Latest(ctx context.Context) (string, error) {
	listPrefix := "backup-"
	if a.prefix != "" {
		listPrefix = a.prefix + "/backup-"
	}

	var keys []string
	var token *string
	for {
		out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(listPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return "", fmt.Errorf("failed to list backups: %w", err)
		}
		for _, obj := range out.Contents {
			if k := aws.ToString(obj.Key); strings.HasSuffix(k, ".json") {
				keys = append(keys, k)
			}
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}

	if len(keys) == 0 {
		return "", ErrNoArchive
	}
	sort.Strings(keys)
	return keys[len(keys)-1], nil
}
