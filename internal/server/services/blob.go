package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/daybook-app/daybook/internal/server/repositories/entries"
)

// ErrQuotaExceeded is returned when an owner's confirmed attachments would go
// past the configured quota.
var ErrQuotaExceeded = errors.New("attachment quota exceeded")

// attachmentSizeBudget mirrors the client's per-image encoding cap and is
// used to convert the byte quota into an attachment count.
const attachmentSizeBudget = 512 * 1024

// Seams for the AWS SDK so presign paths are testable without a backend.
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
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in)
	}
)

// storageKey derives the blob key for an attachment. Keys are scoped by owner
// and entry so cleanup on entry deletion is a prefix operation.
func storageKey(ownerID, entryID, filename string) string {
	return fmt.Sprintf("attachments/%s/%s/%s-%s", ownerID, entryID, uuid.NewString(), path.Base(filename))
}

func (s *EntryService) getS3Client() (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

func (s *EntryService) getPresignClient() (*s3.PresignClient, error) {
	client, err := s.getS3Client()
	if err != nil {
		return nil, err
	}
	return newS3PresignClient(client), nil
}

// PresignPut checks the owner's quota and returns a blob key plus a one-time
// upload URL.
func (s *EntryService) PresignPut(ctx context.Context, ownerID, entryID, filename string) (string, string, error) {
	repo := entries.NewPostgresRepository(s.db)
	count, err := repo.CountAttachments(ctx, ownerID)
	if err != nil {
		return "", "", err
	}
	if (count+1)*attachmentSizeBudget > s.config.AttachmentQuotaBytes {
		return "", "", ErrQuotaExceeded
	}

	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key := storageKey(ownerID, entryID, filename)

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", "", err
	}

	return key, req.URL, nil
}

// PresignGet returns a temporary download URL for a confirmed blob key.
func (s *EntryService) PresignGet(ctx context.Context, key string) (string, error) {
	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

// DeleteBlob removes an attachment object from storage.
func (s *EntryService) DeleteBlob(ctx context.Context, key string) error {
	client, err := s.getS3Client()
	if err != nil {
		return err
	}

	bucket := s.config.S3Bucket
	_, err = deleteObject(client, ctx, &s3.DeleteObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	return err
}
