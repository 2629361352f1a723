package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hsn0918/dentalrag/internal/config"
)

// MinIOClient 读取知识库原稿所在的 bucket
type MinIOClient struct {
	client     *minio.Client
	bucketName string
}

func NewMinIOClient(cfg config.Config) (*MinIOClient, error) {
	client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKeyID, cfg.MinIO.SecretAccessKey, ""),
		Secure: cfg.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return &MinIOClient{client: client, bucketName: cfg.MinIO.BucketName}, nil
}

// ListMarkdown 列出 prefix 下所有 .md 对象，按对象名排序返回
func (mc *MinIOClient) ListMarkdown(ctx context.Context, prefix string) ([]string, error) {
	exists, err := mc.client.BucketExists(ctx, mc.bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", mc.bucketName)
	}

	var keys []string
	for obj := range mc.client.ListObjects(ctx, mc.bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		if strings.HasSuffix(strings.ToLower(obj.Key), ".md") {
			keys = append(keys, obj.Key)
		}
	}
	// ListObjects 已按字典序返回
	return keys, nil
}

// ReadObject 读取整个对象内容
func (mc *MinIOClient) ReadObject(ctx context.Context, objectKey string) ([]byte, error) {
	object, err := mc.client.GetObject(ctx, mc.bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", objectKey, err)
	}
	return data, nil
}
