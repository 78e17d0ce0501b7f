package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MediaService issues upload URLs for post attachments and verifies that the
// referenced objects exist before an item is scheduled.
type MediaService interface {
	InitiateUpload(ctx context.Context, userID, filename string) (key string, uploadURL string, err error)
	ValidateKeys(ctx context.Context, userID string, keys []string) error
}

type mediaService struct {
	s3Client      *s3.Client
	presignClient *s3.PresignClient
	bucketName    string
	mediaLogger   zerolog.Logger
}

func NewMediaService(s3Client *s3.Client, bucketName string, logger zerolog.Logger) MediaService {
	return &mediaService{
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
		bucketName:    bucketName,
		mediaLogger:   logger.With().Str("service", "MediaService").Logger(),
	}
}

// InitiateUpload returns a storage key scoped to the user and a presigned PUT
// URL for direct upload.
func (s *mediaService) InitiateUpload(ctx context.Context, userID, filename string) (string, string, error) {
	if filename == "" {
		return "", "", fmt.Errorf("filename is required")
	}
	key := fmt.Sprintf("media/%s/%s/%s", userID, uuid.NewString(), filename)
	request, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		s.mediaLogger.Error().Err(err).Str("key", key).Msg("Failed to generate presigned PUT URL")
		return "", "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return key, request.URL, nil
}

// ValidateKeys checks that each key belongs to the user and exists in the
// bucket. Keys outside the user's media prefix are rejected without touching
// storage.
func (s *mediaService) ValidateKeys(ctx context.Context, userID string, keys []string) error {
	prefix := fmt.Sprintf("media/%s/", userID)
	for _, key := range keys {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			return fmt.Errorf("media key does not belong to user: %s", key)
		}
		_, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucketName),
			Key:    aws.String(key),
		})
		if err != nil {
			s.mediaLogger.Warn().Err(err).Str("key", key).Msg("Media object not found")
			return fmt.Errorf("media object not found: %s", key)
		}
	}
	return nil
}
