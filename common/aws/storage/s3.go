package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/gleanhub/go-claimsync"
	"github.com/gleanhub/go-claimsync/common"
	"github.com/gleanhub/go-claimsync/models"
)

var _ models.KeyValueRepository = &S3Store{}

// S3Store keeps viewer records as JSON objects, one object per record key. An
// archival alternative to DynamoDB for relay deployments.
type S3Store struct {
	client *s3.Client
	logger models.Logger
	bucket string
}

func NewS3Store(logger models.Logger, s3Client *s3.Client) *S3Store {
	bucket := "claimsync-" + os.Getenv(claimsync.Env_Env) + "-state"
	return &S3Store{s3Client, logger, bucket}
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	getObjectIn := s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	getObjectOut, err := s.client.GetObject(httpCtx, &getObjectIn)
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer getObjectOut.Body.Close()

	value, err := io.ReadAll(getObjectOut.Body)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *S3Store) Put(ctx context.Context, key string, value []byte) error {
	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	putObjectIn := s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/json"),
	}
	if _, err := s.client.PutObject(httpCtx, &putObjectIn); err != nil {
		return err
	}
	s.logger.Debugf("stored key: %s", key)
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	deleteObjectIn := s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	_, err := s.client.DeleteObject(httpCtx, &deleteObjectIn)
	return err
}
