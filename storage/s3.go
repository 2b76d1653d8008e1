package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/tee-ta-bridge/interfaces"
)

const defaultRemoteTimeout = 30 * time.Second

// S3Store keeps failure records as objects under a prefix of an S3 (or S3-compatible) bucket.
// PutObject replaces an object atomically, which gives the full-replace write semantics.
type S3Store struct {
	client      *s3.S3
	bucketName  string
	prefix      string
	timeout     time.Duration
	log         *slog.Logger
	locationURI string
}

// NewS3Store creates a new S3 failure store.
// If accessKey and secretKey are empty the default AWS credential chain is used.
// A custom endpoint switches to path-style addressing for S3-compatible services.
func NewS3Store(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Store, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("%w: empty S3 bucket name", interfaces.ErrInvalidLocationURI)
	}

	prefix = strings.Trim(prefix, "/")
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Store{
		client:      s3.New(sess),
		bucketName:  bucketName,
		prefix:      prefix,
		timeout:     defaultRemoteTimeout,
		log:         log,
		locationURI: uri,
	}, nil
}

// Read fetches the named record object.
func (b *S3Store) Read(name string) ([]byte, error) {
	key, err := b.objectKey(name)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})
	if isS3NotFound(err) {
		b.log.Debug("Failure record not found in S3", slog.String("bucket", b.bucketName), slog.String("key", key))
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		b.log.Error("Failed to get object from S3", slog.String("bucket", b.bucketName), slog.String("key", key), "err", err)
		return nil, fmt.Errorf("%w: failed to get object from S3: %v", interfaces.ErrInternal, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		b.log.Error("Failed to read object body", slog.String("bucket", b.bucketName), slog.String("key", key), "err", err)
		return nil, fmt.Errorf("%w: failed to read object body: %v", interfaces.ErrInternal, err)
	}
	return data, nil
}

// Write uploads the named record object, replacing any previous version.
func (b *S3Store) Write(name string, data []byte) error {
	key, err := b.objectKey(name)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	_, err = b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		b.log.Error("Failed to upload object to S3", slog.String("bucket", b.bucketName), slog.String("key", key), "err", err)
		return fmt.Errorf("%w: failed to upload object to S3: %v", interfaces.ErrInternal, err)
	}
	return nil
}

// Delete removes the named record object. S3 deletes are idempotent, so the object
// is fetched first to report ErrNotFound. A HeadObject 404 carries no error code
// and would hide a missing bucket.
func (b *S3Store) Delete(name string) error {
	key, err := b.objectKey(name)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	existing, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})
	if isS3NotFound(err) {
		return interfaces.ErrNotFound
	}
	if err != nil {
		b.log.Warn("Failed to look up object in S3", slog.String("bucket", b.bucketName), slog.String("key", key), "err", err)
		return fmt.Errorf("%w: failed to look up object in S3: %v", interfaces.ErrInternal, err)
	}
	existing.Body.Close()

	_, err = b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		b.log.Warn("Failed to delete object from S3", slog.String("bucket", b.bucketName), slog.String("key", key), "err", err)
		return fmt.Errorf("%w: failed to delete object from S3: %v", interfaces.ErrInternal, err)
	}
	return nil
}

// List fetches the first page of object keys eagerly so that listing faults surface as
// errors, then fetches further pages while the sequence is consumed.
func (b *S3Store) List() (iter.Seq[string], error) {
	first, err := b.listPage(nil)
	if err != nil {
		b.log.Error("Failed to list objects in S3", slog.String("bucket", b.bucketName), "err", err)
		return nil, fmt.Errorf("%w: failed to list objects in S3: %v", interfaces.ErrInternal, err)
	}

	consumed := false
	return func(yield func(string) bool) {
		if consumed {
			return
		}
		consumed = true

		page := first
		for {
			for _, obj := range page.Contents {
				name, ok := b.nameFromKey(aws.StringValue(obj.Key))
				if !ok {
					continue
				}
				if !yield(name) {
					return
				}
			}
			if !aws.BoolValue(page.IsTruncated) {
				return
			}
			page, err = b.listPage(page.NextContinuationToken)
			if err != nil {
				b.log.Error("Failed to list next S3 page", slog.String("bucket", b.bucketName), "err", err)
				return
			}
		}
	}, nil
}

func (b *S3Store) listPage(token *string) (*s3.ListObjectsV2Output, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	input := &s3.ListObjectsV2Input{
		Bucket:            aws.String(b.bucketName),
		ContinuationToken: token,
	}
	if b.prefix != "" {
		input.Prefix = aws.String(b.prefix + "/")
	}
	return b.client.ListObjectsV2WithContext(ctx, input)
}

// LocationURI returns the URI that identifies this store.
func (b *S3Store) LocationURI() string {
	return b.locationURI
}

func (b *S3Store) objectKey(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	if b.prefix == "" {
		return name, nil
	}
	return path.Join(b.prefix, name), nil
}

// nameFromKey maps an object key back to a record name, skipping nested keys.
func (b *S3Store) nameFromKey(key string) (string, bool) {
	name := key
	if b.prefix != "" {
		name = strings.TrimPrefix(key, b.prefix+"/")
	}
	if err := validateName(name); err != nil {
		b.log.Warn("Skipping S3 object that is not a failure record", slog.String("key", key), "err", err)
		return "", false
	}
	return name, true
}

// isS3NotFound reports whether err means the object does not exist. Only NoSuchKey
// qualifies; NoSuchBucket and other 404s are storage faults.
func isS3NotFound(err error) bool {
	if err == nil {
		return false
	}
	var awsErr awserr.Error
	return errors.As(err, &awsErr) && awsErr.Code() == s3.ErrCodeNoSuchKey
}
