package keys

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// maxKeyObjectSize caps how much of the key object is read.
const maxKeyObjectSize = 4096

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
		return c.GetObject(ctx, in, optFns...)
	}
)

// S3Loader reads the signing secret from an object in an S3-compatible store.
type S3Loader struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
	Object       string
}

func (l S3Loader) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(l.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			l.AccessKey,
			l.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if l.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(l.BaseEndpoint)
		}
		// MinIO and friends
		o.UsePathStyle = true
	}), nil
}

func (l S3Loader) Load(ctx context.Context) (SigningKey, error) {
	c, err := l.client(ctx)
	if err != nil {
		return SigningKey{}, fmt.Errorf("s3 config: %w", err)
	}

	out, err := getObject(c, ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.Bucket),
		Key:    aws.String(l.Object),
	})
	if err != nil {
		return SigningKey{}, fmt.Errorf("s3 get %s/%s: %w", l.Bucket, l.Object, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(io.LimitReader(out.Body, maxKeyObjectSize))
	if err != nil {
		return SigningKey{}, fmt.Errorf("s3 read %s/%s: %w", l.Bucket, l.Object, err)
	}

	return NewSigningKey(b)
}
