// Package s3archive writes audit entries to S3 as one JSON object each,
// keyed so a campaign's entries list in chronological order.
package s3archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

// S3API is the subset of the S3 client the archive uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Archive implements audit.LogRepository on S3.
type Archive struct {
	client S3API
	bucket string
	prefix string
}

// New creates an archive writing under bucket/prefix.
func New(client S3API, bucket, prefix string) *Archive {
	return &Archive{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (a *Archive) campaignPrefix(campaignID string) string {
	return fmt.Sprintf("%s/%s/", a.prefix, campaignID)
}

// key sorts lexically by creation time within a campaign.
func (a *Archive) key(e *domain.LogEntry) string {
	return fmt.Sprintf("%s%s-%s.json", a.campaignPrefix(e.CampaignID),
		e.CreatedAt.UTC().Format("20060102T150405.000000000Z"), e.ID)
}

func (a *Archive) Append(ctx context.Context, e *domain.LogEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.key(e)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting audit entry to S3: %w", err)
	}
	return nil
}

// ListByCampaign returns the newest entries first.
func (a *Archive) ListByCampaign(ctx context.Context, campaignID string, limit int) ([]domain.LogEntry, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.campaignPrefix(campaignID)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing audit entries: %w", err)
		}
		for _, obj := range page.Contents {
			if k := aws.ToString(obj.Key); strings.HasSuffix(k, ".json") {
				keys = append(keys, k)
			}
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]domain.LogEntry, 0, len(keys))
	for _, k := range keys {
		e, err := a.get(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

func (a *Archive) get(ctx context.Context, key string) (*domain.LogEntry, error) {
	res, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting audit entry %s: %w", key, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audit entry %s: %w", key, err)
	}
	var e domain.LogEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshaling audit entry %s: %w", key, err)
	}
	return &e, nil
}
