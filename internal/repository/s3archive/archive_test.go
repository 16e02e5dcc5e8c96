package s3archive

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.objects[aws.ToString(in.Key)]))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}

func TestArchive_AppendAndList(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	a := New(fake, "audit-bucket", "/audit/")
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, a.Append(ctx, &domain.LogEntry{
			ID: id, CampaignID: "c1", Outcome: domain.OutcomeSent, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, a.Append(ctx, &domain.LogEntry{ID: "x", CampaignID: "c2", CreatedAt: base}))

	for k := range fake.objects {
		assert.True(t, strings.HasPrefix(k, "audit/"), k)
	}

	got, err := a.ListByCampaign(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e3", got[0].ID)
	assert.Equal(t, "e2", got[1].ID)
	assert.Equal(t, domain.OutcomeSent, got[0].Outcome)
}
