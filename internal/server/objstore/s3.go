package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fileforge/fileforge/internal/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Seams over the AWS SDK so provider behavior is testable without a live
// S3-compatible backend.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}

	headObject = func(c *s3.Client, ctx context.Context, in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
		return c.HeadObject(ctx, in)
	}

	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		return c.GetObject(ctx, in)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}

	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in)
	}
)

// S3Config describes one S3-compatible bucket target.
type S3Config struct {
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint overrides the AWS endpoint for S3-compatible backends
	// (MinIO and the like). Empty means AWS.
	Endpoint string
	Bucket   string
}

// S3Provider implements Provider over an S3-compatible backend.
type S3Provider struct {
	cfg S3Config

	initOnce sync.Once
	initErr  error
	client   *s3.Client
	presign  *s3.PresignClient
}

// NewS3Provider constructs a provider for the given bucket target. Clients
// are built lazily on first use.
func NewS3Provider(cfg S3Config) *S3Provider {
	return &S3Provider{cfg: cfg}
}

func (p *S3Provider) init(ctx context.Context) error {
	p.initOnce.Do(func() {
		cfg, err := loadDefaultAWSConfig(ctx,
			awsconfig.WithRegion(p.cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				p.cfg.AccessKey, p.cfg.SecretKey, "",
			)))
		if err != nil {
			p.initErr = fmt.Errorf("aws config: %w", err)
			return
		}
		p.client = newS3ClientFromConfig(cfg, func(o *s3.Options) {
			if p.cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(p.cfg.Endpoint)
			}
		})
		p.presign = newS3PresignClient(p.client)
	})
	return p.initErr
}

func (p *S3Provider) SignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	if err := p.init(ctx); err != nil {
		return "", err
	}
	req, err := presignPutObject(p.presign, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("%w: presign put: %w", common.ErrProvider, err)
	}
	return req.URL, nil
}

func (p *S3Provider) Exists(ctx context.Context, key string) (bool, error) {
	if err := p.init(ctx); err != nil {
		return false, err
	}
	_, err := headObject(p.client, ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("%w: head object: %w", common.ErrProvider, err)
	}
	return true, nil
}

func (p *S3Provider) Get(ctx context.Context, key string) ([]byte, error) {
	if err := p.init(ctx); err != nil {
		return nil, err
	}
	out, err := getObject(p.client, ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, common.ErrObjectNotFound
		}
		return nil, fmt.Errorf("%w: get object: %w", common.ErrProvider, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read object body: %w", common.ErrProvider, err)
	}
	return data, nil
}

func (p *S3Provider) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := p.init(ctx); err != nil {
		return err
	}
	_, err := putObject(p.client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("%w: put object: %w", common.ErrProvider, err)
	}
	return nil
}

func (p *S3Provider) Delete(ctx context.Context, key string) error {
	if err := p.init(ctx); err != nil {
		return err
	}
	_, err := deleteObject(p.client, ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return common.ErrObjectNotFound
		}
		return fmt.Errorf("%w: delete object: %w", common.ErrProvider, err)
	}
	return nil
}
