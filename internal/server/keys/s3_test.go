package keys

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubS3(t *testing.T, body string, getErr error) *s3.GetObjectInput {
	t.Helper()

	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	origGet := getObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
		getObject = origGet
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-north-1", lo.Region)
		return aws.Config{}, nil
	}

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var opts s3.Options
		for _, fn := range optFns {
			fn(&opts)
		}
		require.NotNil(t, opts.BaseEndpoint)
		assert.Equal(t, "http://minio:9000", *opts.BaseEndpoint)
		assert.True(t, opts.UsePathStyle)
		return &s3.Client{}
	}

	captured := &s3.GetObjectInput{}
	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
		*captured = *in
		if getErr != nil {
			return nil, getErr
		}
		return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
	}

	return captured
}

func testLoader() S3Loader {
	return S3Loader{
		Region:       "eu-north-1",
		AccessKey:    "ak",
		SecretKey:    "sk",
		BaseEndpoint: "http://minio:9000",
		Bucket:       "keys",
		Object:       "auth/signing",
	}
}

func TestS3Loader_Load(t *testing.T) {
	in := stubS3(t, secret32+"\n", nil)

	k, err := testLoader().Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte(secret32), k.Bytes())
	assert.Equal(t, "keys", aws.ToString(in.Bucket))
	assert.Equal(t, "auth/signing", aws.ToString(in.Key))
}

func TestS3Loader_GetError(t *testing.T) {
	stubS3(t, "", errors.New("NoSuchKey"))

	_, err := testLoader().Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keys/auth/signing")
}

func TestS3Loader_ShortKey(t *testing.T) {
	stubS3(t, "abc", nil)

	_, err := testLoader().Load(context.Background())
	assert.ErrorIs(t, err, ErrKeyTooShort)
}

func TestS3Loader_ConfigError(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("boom")
	}

	_, err := testLoader().Load(context.Background())
	assert.ErrorContains(t, err, "s3 config")
}
