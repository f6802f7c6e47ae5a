package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinioConfig holds the connection settings of the archive bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// User metadata keys as they come back from MinIO (canonical header form,
// prefix stripped).
const (
	metaFileName  = "Filename"
	metaOwner     = "Owner"
	metaCategory  = "Category"
	metaHash      = "Sha256"
	metaCreatedBy = "Creator"
)

// MinioBlobStore stores archives in an S3-compatible bucket.
type MinioBlobStore struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewMinioClient builds a MinIO client from cfg.
func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return client, nil
}

// NewMinioBlobStore wraps client and makes sure the bucket exists.
func NewMinioBlobStore(ctx context.Context, client *minio.Client, bucket string) (*MinioBlobStore, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		zerolog.Ctx(ctx).Info().Str("bucket", bucket).Msg("created export archive bucket")
	}
	return &MinioBlobStore{client: client, bucket: bucket, now: time.Now}, nil
}

func (s *MinioBlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content, s.now())
	if err != nil {
		return nil, err
	}
	_, err = s.client.PutObject(ctx, s.bucket, meta.Key, bytes.NewReader(data), meta.Size, minio.PutObjectOptions{
		ContentType: meta.ContentType,
		UserMetadata: map[string]string{
			metaFileName:  meta.FileName,
			metaOwner:     meta.Owner,
			metaCategory:  meta.Category,
			metaHash:      meta.Hash,
			metaCreatedBy: meta.CreatedBy,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", meta.Key, err)
	}
	return &meta, nil
}

func (s *MinioBlobStore) Download(ctx context.Context, key string) (io.ReadCloser, *BlobMetadata, error) {
	meta, err := s.GetMetadata(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return obj, meta, nil
}

func (s *MinioBlobStore) GetMetadata(ctx context.Context, key string) (*BlobMetadata, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	return metadataFromInfo(info), nil
}

func (s *MinioBlobStore) List(ctx context.Context, owner string) ([]*BlobMetadata, error) {
	var out []*BlobMetadata
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:       owner + "/",
		Recursive:    true,
		WithMetadata: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", owner, info.Err)
		}
		out = append(out, metadataFromInfo(info))
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MinioBlobStore) Delete(ctx context.Context, key string) error {
	if _, err := s.GetMetadata(ctx, key); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

func metadataFromInfo(info minio.ObjectInfo) *BlobMetadata {
	meta := &BlobMetadata{
		Key:         info.Key,
		ContentType: info.ContentType,
		Size:        info.Size,
		CreatedAt:   info.LastModified.UTC(),
		FileName:    userMeta(info, metaFileName),
		Owner:       userMeta(info, metaOwner),
		Category:    userMeta(info, metaCategory),
		Hash:        userMeta(info, metaHash),
		CreatedBy:   userMeta(info, metaCreatedBy),
	}
	if meta.FileName == "" {
		meta.FileName = info.Key[strings.LastIndex(info.Key, "/")+1:]
	}
	return meta
}

// userMeta looks a key up case-insensitively; listing and stat return
// user metadata with different casing.
func userMeta(info minio.ObjectInfo, key string) string {
	for k, v := range info.UserMetadata {
		k = strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")
		if k == strings.ToLower(key) {
			return v
		}
	}
	return ""
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
