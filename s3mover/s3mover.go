// Package s3mover moves a request's data objects between the storage
// locations of its lifecycle stages. A move never deletes the source before
// every object is confirmed present at the destination, and only
// request-scoped locations are ever deleted.
package s3mover

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gosom/airlock/models"
	"github.com/gosom/airlock/stages"
)

// ObjectAPI is the slice of the S3 client the mover uses.
type ObjectAPI interface {
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

// Mover implements stage-to-stage data movement on S3-compatible storage.
type Mover struct {
	client      ObjectAPI
	logger      *zap.Logger
	copyTimeout time.Duration
	concurrency int
}

// Option configures a Mover.
type Option func(*Mover)

// WithCopyTimeout bounds the confirmation of a single object copy. A copy
// that does not confirm within the timeout is treated as failed, not hung.
func WithCopyTimeout(d time.Duration) Option {
	return func(m *Mover) {
		m.copyTimeout = d
	}
}

// WithConcurrency sets how many objects are copied in parallel.
func WithConcurrency(n int) Option {
	return func(m *Mover) {
		m.concurrency = n
	}
}

// New creates a Mover on top of the given S3 client.
func New(client ObjectAPI, logger *zap.Logger, opts ...Option) *Mover {
	m := &Mover{
		client:      client,
		logger:      logger,
		copyTimeout: 5 * time.Minute,
		concurrency: 4,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// NewClient builds an S3 client from static credentials. An endpoint URL may
// be given for S3-compatible storage (MinIO and friends).
func NewClient(accessKey, secretKey, region, endpointURL string) (*s3.Client, error) {
	creds := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpointURL != "" {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		}
	})

	return client, nil
}

// MoveToStage copies the request's objects from one stage location to
// another. Source objects are deleted only after every copy is confirmed at
// the destination, and only when the source is exclusively owned by the
// request. Any copy or verification failure leaves the source untouched and
// returns models.ErrTransferIncomplete so the whole move can be retried.
//
// An empty files slice means the whole source location is the payload: every
// object found there is moved. With deleteSource false the source is left in
// place regardless of ownership.
func (m *Mover) MoveToStage(ctx context.Context, requestID string, files []models.AirlockFile, from, to stages.Location, deleteSource bool) error {
	srcBucket := from.BucketFor(requestID)
	dstBucket := to.BucketFor(requestID)

	keys, err := m.resolveKeys(ctx, srcBucket, files)
	if err != nil {
		return err
	}

	if to.RequestScoped {
		if err := m.ensureBucket(ctx, dstBucket); err != nil {
			return fmt.Errorf("failed to prepare destination %s: %w", dstBucket, err)
		}
	}

	if err := m.copyAll(ctx, srcBucket, dstBucket, keys); err != nil {
		return fmt.Errorf("move %s -> %s: %v: %w", srcBucket, dstBucket, err, models.ErrTransferIncomplete)
	}

	if !deleteSource || !from.RequestScoped {
		// shared locations always keep their objects; only the copy happens
		return nil
	}

	return m.deleteSource(ctx, srcBucket, keys)
}

// DeleteRequestData removes the named objects from a stage location. With no
// files named, the entire location is the logical payload and is removed
// outright; that expansion is only valid for request-scoped locations. A
// shared location holds other requests' objects under the same bucket, so an
// unnamed delete there is rejected with models.ErrConfiguration instead of
// being expanded. The backing bucket itself is deleted only for
// request-scoped locations and only when a re-listing at deletion time shows
// it empty, so a concurrent upload into the same location is never destroyed.
func (m *Mover) DeleteRequestData(ctx context.Context, requestID string, files []models.AirlockFile, loc stages.Location) error {
	bucket := loc.BucketFor(requestID)

	if len(files) == 0 && !loc.RequestScoped {
		return fmt.Errorf("refusing to empty shared location %s for request %s: %w",
			bucket, requestID, models.ErrConfiguration)
	}

	keys, err := m.resolveKeys(ctx, bucket, files)
	if err != nil {
		return err
	}

	var errs error

	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete %s/%s: %w", bucket, key, err))
		}
	}

	if errs != nil {
		return errs
	}

	if !loc.RequestScoped {
		return nil
	}

	// re-check, never trust a cached count
	remaining, err := m.listKeys(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to re-list %s: %w", bucket, err)
	}

	if len(remaining) > 0 {
		m.logger.Info("bucket retained, still holds objects",
			zap.String("bucket", bucket),
			zap.Int("remaining", len(remaining)),
		)

		return nil
	}

	if _, err := m.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("failed to delete bucket %s: %w", bucket, err)
	}

	m.logger.Info("deleted request bucket", zap.String("bucket", bucket))

	return nil
}

func (m *Mover) resolveKeys(ctx context.Context, bucket string, files []models.AirlockFile) ([]string, error) {
	if len(files) == 0 {
		return m.listKeys(ctx, bucket)
	}

	keys := make([]string, 0, len(files))
	for _, f := range files {
		keys = append(keys, f.Name)
	}

	return keys, nil
}

func (m *Mover) listKeys(ctx context.Context, bucket string) ([]string, error) {
	var (
		keys  []string
		token *string
	)

	for {
		out, err := m.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", bucket, err)
		}

		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}

		if out.NextContinuationToken == nil {
			return keys, nil
		}

		token = out.NextContinuationToken
	}
}

func (m *Mover) ensureBucket(ctx context.Context, bucket string) error {
	if _, err := m.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}

	_, err := m.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		// a concurrent handler may have created it between the head and here
		if _, headErr := m.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); headErr == nil {
			return nil
		}

		return err
	}

	return nil
}

func (m *Mover) copyAll(ctx context.Context, srcBucket, dstBucket string, keys []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			return m.copyObject(gctx, srcBucket, dstBucket, key)
		})
	}

	return g.Wait()
}

// copyObject copies a single object and confirms it at the destination. A
// source object that already vanished but exists at the destination counts as
// moved: redelivered messages replay moves that partially completed.
func (m *Mover) copyObject(ctx context.Context, srcBucket, dstBucket, key string) error {
	ctx, cancel := context.WithTimeout(ctx, m.copyTimeout)
	defer cancel()

	_, err := m.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(key),
		CopySource: aws.String(srcBucket + "/" + key),
	})
	if err != nil {
		if m.objectExists(ctx, dstBucket, key) {
			m.logger.Debug("object already at destination",
				zap.String("bucket", dstBucket),
				zap.String("key", key),
			)

			return nil
		}

		return fmt.Errorf("copy %s/%s: %w", srcBucket, key, err)
	}

	if !m.objectExists(ctx, dstBucket, key) {
		return fmt.Errorf("copy of %s/%s not confirmed at destination", srcBucket, key)
	}

	return nil
}

func (m *Mover) objectExists(ctx context.Context, bucket, key string) bool {
	_, err := m.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})

	return err == nil
}

func (m *Mover) deleteSource(ctx context.Context, srcBucket string, keys []string) error {
	var errs error

	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(srcBucket),
			Key:    aws.String(key),
		}); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete %s/%s: %w", srcBucket, key, err))
		}
	}

	if errs != nil {
		// destination holds a full copy already, so this is not a data loss;
		// the leftover source is picked up by the next cleanup run
		m.logger.Warn("failed to clear source after move", zap.Error(errs))

		return errs
	}

	remaining, err := m.listKeys(ctx, srcBucket)
	if err != nil {
		return fmt.Errorf("failed to re-list %s: %w", srcBucket, err)
	}

	if len(remaining) > 0 {
		return nil
	}

	if _, err := m.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(srcBucket)}); err != nil {
		return fmt.Errorf("failed to delete bucket %s: %w", srcBucket, err)
	}

	return nil
}
