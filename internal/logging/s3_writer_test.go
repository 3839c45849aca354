package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chromeox/CourseScout-sub015/internal/config"
	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func newTestS3Writer(p *fakePutter) *S3Writer {
	w := NewS3WriterWithClient(p, config.LoggingSinkConfig{
		S3Bucket: "usage-archive",
		S3Prefix: "usage/",
		PodName:  "gateway-0",
	})
	w.now = func() time.Time { return time.Date(2026, 4, 1, 9, 15, 30, 123, time.UTC) }
	return w
}

func TestS3Writer_WriteBatch(t *testing.T) {
	p := &fakePutter{}
	w := newTestS3Writer(p)

	records := []*models.UsageRecord{usageRecord("r-1"), usageRecord("r-2")}
	require.NoError(t, w.WriteBatch(context.Background(), records))

	require.Len(t, p.inputs, 1)
	in := p.inputs[0]
	assert.Equal(t, "usage-archive", aws.ToString(in.Bucket))
	assert.Equal(t, "usage/2026/04/01/gateway-0-20260401-091530-000000123.jsonl", aws.ToString(in.Key))
	assert.Equal(t, "application/x-ndjson", aws.ToString(in.ContentType))

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(p.bodies[0]))
	for sc.Scan() {
		var rec models.UsageRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		ids = append(ids, rec.RequestID)
	}
	assert.Equal(t, []string{"r-1", "r-2"}, ids)
}

func TestS3Writer_EmptyBatch(t *testing.T) {
	p := &fakePutter{}
	require.NoError(t, newTestS3Writer(p).WriteBatch(context.Background(), nil))
	assert.Empty(t, p.inputs)
}

func TestS3Writer_UploadError(t *testing.T) {
	p := &fakePutter{err: errors.New("AccessDenied")}
	err := newTestS3Writer(p).WriteBatch(context.Background(), []*models.UsageRecord{usageRecord("r-1")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upload to S3")
}
