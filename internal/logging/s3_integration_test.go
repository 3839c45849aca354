package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chromeox/CourseScout-sub015/internal/config"
	"github.com/Chromeox/CourseScout-sub015/internal/models"
	"github.com/Chromeox/CourseScout-sub015/internal/queue"
)

// Integration tests for the S3 usage archive against MinIO. They are skipped
// unless MINIO_ENDPOINT is set:
//
//   docker run -d --name minio-test -p 9000:9000 \
//     -e MINIO_ROOT_USER=minioadmin -e MINIO_ROOT_PASSWORD=minioadmin \
//     minio/minio server /data
//
//   MINIO_ENDPOINT=http://localhost:9000 go test ./internal/logging -run TestS3Integration

const testBucketName = "test-usage-archive"

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func minioClient(t *testing.T) *s3.Client {
	t.Helper()
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			getenvDefault("MINIO_ACCESS_KEY", "minioadmin"),
			getenvDefault("MINIO_SECRET_KEY", "minioadmin"),
			"",
		)),
	)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(testBucketName)}); err != nil {
		if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(testBucketName)}); err != nil {
			t.Skipf("MinIO not usable: %v", err)
		}
	}
	return client
}

func TestS3Integration_WorkerArchivesUsage(t *testing.T) {
	client := minioClient(t)
	prefix := "it-" + time.Now().UTC().Format("150405.000000") + "/"

	writer := NewS3WriterWithClient(client, config.LoggingSinkConfig{
		S3Bucket: testBucketName,
		S3Prefix: prefix,
		PodName:  "gateway-it",
	})

	cfg := queue.DefaultConfig("it-usage")
	cfg.BatchTimeout = 50 * time.Millisecond
	q := queue.NewMemoryQueue[*models.UsageRecord](cfg)
	sink := NewAsyncSink(q, 64)
	worker := NewUsageWorker(q, nil, writer, cfg)
	worker.Start(context.Background())

	sink.Record(usageRecord("it-1"))
	sink.Record(usageRecord("it-2"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, sink.Close(ctx))
	require.NoError(t, worker.Stop(ctx))

	list, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(testBucketName),
		Prefix: aws.String(prefix),
	})
	require.NoError(t, err)
	require.NotEmpty(t, list.Contents)

	var body strings.Builder
	for _, obj := range list.Contents {
		out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(testBucketName), Key: obj.Key})
		require.NoError(t, err)
		data, _ := io.ReadAll(out.Body)
		out.Body.Close()
		body.Write(data)

		_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(testBucketName), Key: obj.Key})
	}
	assert.Contains(t, body.String(), `"request_id":"it-1"`)
	assert.Contains(t, body.String(), `"request_id":"it-2"`)
}
