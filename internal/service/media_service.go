package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	config "github.com/maheshrc27/pinscheduler/configs"
	"github.com/maheshrc27/pinscheduler/internal/models"
	"github.com/maheshrc27/pinscheduler/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const MaxMediaSize = 100 << 20

var allowedMedia = map[string]string{
	"jpg":  models.MediaTypeImage,
	"png":  models.MediaTypeImage,
	"gif":  models.MediaTypeImage,
	"webp": models.MediaTypeImage,
	"mp4":  models.MediaTypeVideo,
	"mov":  models.MediaTypeVideo,
	"m4v":  models.MediaTypeVideo,
}

// ObjectStore stores uploaded media under a key.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// MediaService accepts image and video uploads and returns the public URL
// to schedule them with.
type MediaService interface {
	Upload(ctx context.Context, userID string, r io.Reader) (*transfer.MediaUpload, error)
}

type mediaService struct {
	store     ObjectStore
	publicURL string
	log       *zap.Logger
}

func NewMediaService(store ObjectStore, publicURL string, log *zap.Logger) MediaService {
	return &mediaService{store: store, publicURL: strings.TrimRight(publicURL, "/"), log: log}
}

func (s *mediaService) Upload(ctx context.Context, userID string, r io.Reader) (*transfer.MediaUpload, error) {
	const op = "media.upload"

	if userID == "" {
		return nil, ErrUnauthorized(op, "missing caller identity")
	}
	if s.store == nil || s.publicURL == "" {
		return nil, ErrConfiguration(op, "media storage is not configured")
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxMediaSize+1))
	if err != nil {
		return nil, ErrInvalid(op, "cannot read uploaded file")
	}
	if len(data) == 0 {
		return nil, ErrInvalid(op, "uploaded file is empty")
	}
	if len(data) > MaxMediaSize {
		return nil, ErrInvalid(op, "uploaded file is too large")
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return nil, ErrInvalid(op, "unsupported file type")
	}
	mediaType, ok := allowedMedia[kind.Extension]
	if !ok {
		return nil, ErrInvalid(op, fmt.Sprintf("file type %s is not allowed", kind.Extension))
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate media key: %w", err)
	}
	key := fmt.Sprintf("%s/%s.%s", userID, id, kind.Extension)

	if err := s.store.Put(ctx, key, data, kind.MIME.Value); err != nil {
		return nil, ErrExternal(op, "failed to store media", nil, err)
	}

	s.log.Info("media uploaded", zap.String("user_id", userID), zap.String("key", key), zap.Int("size", len(data)))
	return &transfer.MediaUpload{URL: s.publicURL + "/" + key, MediaType: mediaType}, nil
}

// R2Service is an ObjectStore backed by a Cloudflare R2 bucket.
type R2Service struct {
	config config.R2

	once   sync.Once
	client *s3.Client
	err    error
}

func NewR2Service(cfg config.R2) *R2Service {
	return &R2Service{config: cfg}
}

func (r *R2Service) R2Client(ctx context.Context) (*s3.Client, error) {
	r.once.Do(func() {
		cfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r.config.AccessKey, r.config.SecretKey, "")),
			awsconfig.WithRegion("auto"),
		)
		if err != nil {
			r.err = err
			return
		}
		r.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.config.AccountID))
		})
	})
	return r.client, r.err
}

func (r *R2Service) Put(ctx context.Context, key string, body []byte, contentType string) error {
	client, err := r.R2Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	return err
}
