package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	seiserrs "github.com/Sonified/seisstream/internal/errs"
)

// S3Config configures S3Store's construction: region/endpoint/credentials
// read from explicit fields rather than ambient AWS profiles, since a
// server process shouldn't depend on a developer's local AWS config.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // non-empty for S3-compatible stores (MinIO, R2, ...)
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// S3Store implements Store against an S3-compatible bucket.
type S3Store struct {
	bucket string
	client *s3.Client
	presig *s3.PresignClient
}

// NewS3Store builds an S3Store from explicit credentials/endpoint (never
// from ambient environment discovery, since a server process shouldn't
// depend on a developer's local AWS profile). internal/config resolves
// environment variables into this struct.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, &seiserrs.Permanent{Op: "s3store.init", Err: err}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3Store{
		bucket: cfg.Bucket,
		client: client,
		presig: s3.NewPresignClient(client),
	}, nil
}

func classifyS3Err(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return &seiserrs.NotFound{Path: op}
		case "PreconditionFailed", "ConditionalRequestConflict":
			return ErrEtagMismatch
		case "SlowDown", "RequestTimeout", "ServiceUnavailable", "InternalError", "TooManyRequests":
			return &seiserrs.Transient{Op: op, Err: err}
		}
	}
	return &seiserrs.Transient{Op: op, Err: err}
}

func (s *S3Store) Put(ctx context.Context, path string, data []byte, opts PutOptions) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(data),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.IfMatch != "" {
		if opts.IfMatch == IfMatchAbsent {
			input.IfNoneMatch = aws.String("*")
		} else {
			input.IfMatch = aws.String(opts.IfMatch)
		}
	}

	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		return "", classifyS3Err("s3store.put", err)
	}
	etag := ""
	if out.ETag != nil {
		etag = *out.ETag
	}
	return etag, nil
}

func (s *S3Store) PutStream(ctx context.Context, path string, r io.Reader, size int64, opts PutOptions) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(path),
		Body:          r,
		ContentLength: aws.Int64(size),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.IfMatch != "" {
		if opts.IfMatch == IfMatchAbsent {
			input.IfNoneMatch = aws.String("*")
		} else {
			input.IfMatch = aws.String(opts.IfMatch)
		}
	}
	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		return "", classifyS3Err("s3store.putstream", err)
	}
	etag := ""
	if out.ETag != nil {
		etag = *out.ETag
	}
	return etag, nil
}

func (s *S3Store) Get(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, classifyS3Err("s3store.get", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &seiserrs.Transient{Op: "s3store.get", Err: err}
	}
	return data, nil
}

func (s *S3Store) Head(ctx context.Context, path string) (ObjectMeta, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return ObjectMeta{}, classifyS3Err("s3store.head", err)
	}
	meta := ObjectMeta{Path: path}
	if out.ContentLength != nil {
		meta.Size = *out.ContentLength
	}
	if out.ETag != nil {
		meta.ETag = *out.ETag
	}
	if out.LastModified != nil {
		meta.Modified = *out.LastModified
	}
	return meta, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	var token *string
	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, classifyS3Err("s3store.list", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				out = append(out, *obj.Key)
			}
		}
		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		token = page.NextContinuationToken
	}
	return out, nil
}

func (s *S3Store) PresignGet(ctx context.Context, path string, ttl time.Duration) (string, error) {
	req, err := s.presig.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", classifyS3Err("s3store.presign", err)
	}
	return req.URL, nil
}
