package upload

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultS3Endpoint = "s3.amazonaws.com"

// S3Adapter uploads artifacts to S3-compatible object storage using minio-go.
// Credential keys: access_key, secret_key, region, endpoint (optional).
// Destination config keys: bucket (required), prefix (optional).
type S3Adapter struct{}

func (a *S3Adapter) Provider() string { return ProviderS3 }

func (a *S3Adapter) Upload(ctx context.Context, localPath string, cfg, creds map[string]string) (string, error) {
	bucket := cfg["bucket"]
	if bucket == "" {
		return "", &UploadError{Provider: ProviderS3, Err: fmt.Errorf("destination config missing bucket")}
	}

	client, err := a.newClient(creds)
	if err != nil {
		return "", &UploadError{Provider: ProviderS3, Err: err}
	}

	key := objectKey(cfg["prefix"], localPath)
	info, err := client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "application/gzip",
	})
	if err != nil {
		return "", &UploadError{Provider: ProviderS3, Err: fmt.Errorf("put object %s: %w", key, err)}
	}

	log.Printf("Uploaded %s to %s (Size: %d)", key, bucket, info.Size)
	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}

// EnforceRetention deletes objects under the destination prefix older than the
// retention window. Only invoked explicitly by the operator; the backup flow
// itself never prunes.
func (a *S3Adapter) EnforceRetention(ctx context.Context, cfg, creds map[string]string, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	bucket := cfg["bucket"]
	if bucket == "" {
		return 0, fmt.Errorf("destination config missing bucket")
	}

	client, err := a.newClient(creds)
	if err != nil {
		return 0, err
	}

	deadline := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	opts := minio.ListObjectsOptions{
		Prefix:    cfg["prefix"],
		Recursive: true,
	}

	deletedCount := 0
	for object := range client.ListObjects(ctx, bucket, opts) {
		if object.Err != nil {
			log.Printf("Error listing object: %v", object.Err)
			continue
		}

		if object.LastModified.Before(deadline) {
			err := client.RemoveObject(ctx, bucket, object.Key, minio.RemoveObjectOptions{})
			if err != nil {
				log.Printf("Failed to delete expired object %s: %v", object.Key, err)
				continue
			}
			deletedCount++
			log.Printf("Deleted expired backup: %s (Time: %s)", object.Key, object.LastModified.Format(time.RFC3339))
		}
	}

	return deletedCount, nil
}

func (a *S3Adapter) newClient(creds map[string]string) (*minio.Client, error) {
	accessKey := creds["access_key"]
	secretKey := creds["secret_key"]
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("access_key and secret_key are required")
	}

	// Remove scheme if present, minio-go expects host:port
	endpoint := creds["endpoint"]
	if endpoint == "" {
		endpoint = defaultS3Endpoint
	}
	secure := true
	if strings.HasPrefix(endpoint, "https://") {
		endpoint = strings.TrimPrefix(endpoint, "https://")
	} else if strings.HasPrefix(endpoint, "http://") {
		endpoint = strings.TrimPrefix(endpoint, "http://")
		secure = false
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: creds["region"],
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}
	return client, nil
}

func objectKey(prefix, localPath string) string {
	base := filepath.Base(localPath)
	if prefix == "" {
		return base
	}
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(prefix, "/"), base)
}
