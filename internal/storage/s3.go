package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	appconfig "photostore/internal/config"
)

const (
	defaultS3RequestTimeout  = 30 * time.Second
	defaultS3ListPageTimeout = 30 * time.Second

	// s3LeasePrefix holds the lease documents that emulate blob leases.
	s3LeasePrefix = ".leases/"
)

type s3API interface {
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutPublicAccessBlock(ctx context.Context, params *s3.PutPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.PutPublicAccessBlockOutput, error)
	PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type objectUploader interface {
	UploadObject(ctx context.Context, input *transfermanager.UploadObjectInput, opts ...func(*transfermanager.Options)) (*transfermanager.UploadObjectOutput, error)
}

type listObjectsV2Paginator interface {
	HasMorePages() bool
	NextPage(ctx context.Context, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type awsListObjectsV2Paginator struct {
	inner *s3.ListObjectsV2Paginator
}

func (p *awsListObjectsV2Paginator) HasMorePages() bool {
	return p.inner != nil && p.inner.HasMorePages()
}

func (p *awsListObjectsV2Paginator) NextPage(ctx context.Context, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if p.inner == nil {
		return nil, errors.New("s3 paginator is not configured")
	}
	return p.inner.NextPage(ctx, optFns...)
}

// S3Store is a Backend over Amazon S3 or an S3-compatible service.
// Containers map to buckets named BucketPrefix+container. S3 has no
// lease primitive, so leases are lease documents under .leases/ created
// with If-None-Match and checked before every write to the blob.
type S3Store struct {
	api                       s3API
	uploader                  objectUploader
	newListObjectsV2Paginator func(s3.ListObjectsV2APIClient, *s3.ListObjectsV2Input) listObjectsV2Paginator
	region                    string
	endpoint                  string
	bucketPrefix              string
	requestTimeout            time.Duration
	listPageTimeout           time.Duration
	now                       func() time.Time
}

type s3LeaseDocument struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewS3Store(cfg appconfig.S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		return nil, errors.New("s3 region is required")
	}
	endpoint, err := normalizeEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{
		api:      client,
		uploader: transfermanager.New(client),
		newListObjectsV2Paginator: func(c s3.ListObjectsV2APIClient, input *s3.ListObjectsV2Input) listObjectsV2Paginator {
			return &awsListObjectsV2Paginator{inner: s3.NewListObjectsV2Paginator(c, input)}
		},
		region:          cfg.Region,
		endpoint:        endpoint,
		bucketPrefix:    cfg.BucketPrefix,
		requestTimeout:  defaultS3RequestTimeout,
		listPageTimeout: defaultS3ListPageTimeout,
		now:             time.Now,
	}, nil
}

func normalizeEndpoint(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("s3 endpoint must be a valid http(s) URL: %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("s3 endpoint must use http or https: %q", raw)
	}
	return strings.TrimRight(trimmed, "/"), nil
}

func (s *S3Store) Name() string { return "s3" }

func (s *S3Store) bucket(container string) string {
	return s.bucketPrefix + container
}

func (s *S3Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.requestTimeout)
}

func (s *S3Store) EnsureContainer(ctx context.Context, container string) error {
	if s.api == nil {
		return errors.New("s3 api client is not configured")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket(container))}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	_, err := s.api.CreateBucket(ctx, input)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("create bucket: %w", s3StatusError(err))
	}
	return nil
}

// SetPublicBlobAccess grants anonymous s3:GetObject on the bucket's
// objects. Bucket listing stays private.
func (s *S3Store) SetPublicBlobAccess(ctx context.Context, container string) error {
	if s.api == nil {
		return errors.New("s3 api client is not configured")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	bucket := s.bucket(container)
	_, err := s.api.PutPublicAccessBlock(ctx, &s3.PutPublicAccessBlockInput{
		Bucket: aws.String(bucket),
		PublicAccessBlockConfiguration: &types.PublicAccessBlockConfiguration{
			BlockPublicAcls:       aws.Bool(true),
			IgnorePublicAcls:      aws.Bool(true),
			BlockPublicPolicy:     aws.Bool(false),
			RestrictPublicBuckets: aws.Bool(false),
		},
	})
	if err != nil {
		return fmt.Errorf("put public access block: %w", s3StatusError(err))
	}
	policy, err := publicReadPolicy(bucket)
	if err != nil {
		return err
	}
	if _, err := s.api.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(bucket),
		Policy: aws.String(policy),
	}); err != nil {
		return fmt.Errorf("put bucket policy: %w", s3StatusError(err))
	}
	return nil
}

func publicReadPolicy(bucket string) (string, error) {
	doc := map[string]any{
		"Version": "2012-10-17",
		"Statement": []map[string]any{{
			"Sid":       "PublicReadBlobs",
			"Effect":    "Allow",
			"Principal": "*",
			"Action":    "s3:GetObject",
			"Resource":  "arn:aws:s3:::" + bucket + "/*",
		}},
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode bucket policy: %w", err)
	}
	return string(payload), nil
}

func (s *S3Store) ListBlobs(ctx context.Context, container string) ([]BlobItem, error) {
	if s.api == nil {
		return nil, errors.New("s3 api client is not configured")
	}
	if s.newListObjectsV2Paginator == nil {
		return nil, errors.New("s3 paginator factory is not configured")
	}
	paginator := s.newListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket(container)),
	})
	if paginator == nil {
		return nil, errors.New("s3 paginator is not configured")
	}

	items := make([]BlobItem, 0)
	for paginator.HasMorePages() {
		page, err := s.nextListPage(ctx, paginator)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", s3StatusError(err))
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || strings.HasPrefix(*obj.Key, s3LeasePrefix) {
				continue
			}
			item := BlobItem{
				Name: *obj.Key,
				URL:  s.BlobURL(container, *obj.Key),
				Kind: KindBlock,
			}
			if obj.ETag != nil {
				item.ETag = ETag(*obj.ETag)
			}
			if obj.Size != nil {
				item.Size = *obj.Size
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *S3Store) nextListPage(ctx context.Context, paginator listObjectsV2Paginator) (*s3.ListObjectsV2Output, error) {
	if s.listPageTimeout <= 0 {
		return paginator.NextPage(ctx)
	}
	pageCtx, cancel := context.WithTimeout(ctx, s.listPageTimeout)
	defer cancel()
	return paginator.NextPage(pageCtx)
}

func (s *S3Store) BlobURL(container, name string) string {
	base := s.endpoint
	if base == "" {
		base = fmt.Sprintf("https://s3.%s.amazonaws.com", s.region)
	}
	return base + "/" + url.PathEscape(s.bucket(container)) + "/" + url.PathEscape(name)
}

func (s *S3Store) Properties(ctx context.Context, container, name string) (BlobProperties, error) {
	if s.api == nil {
		return BlobProperties{}, errors.New("s3 api client is not configured")
	}
	reqCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	head, err := s.api.HeadObject(reqCtx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket(container)),
		Key:    aws.String(name),
	})
	if err != nil {
		return BlobProperties{}, fmt.Errorf("head object: %w", s3StatusError(err))
	}
	props := BlobProperties{}
	if head.ETag != nil {
		props.ETag = ETag(*head.ETag)
	}
	if head.ContentLength != nil {
		props.Size = *head.ContentLength
	}
	if head.ContentType != nil {
		props.ContentType = *head.ContentType
	}
	if head.LastModified != nil {
		props.LastModified = head.LastModified.UTC()
	}
	doc, _, err := s.readLease(ctx, container, name)
	if err != nil {
		return BlobProperties{}, err
	}
	props.Leased = doc != nil && s.now().Before(doc.ExpiresAt)
	return props, nil
}

func (s *S3Store) Upload(ctx context.Context, container, name string, data []byte, opts UploadOptions) (UploadResult, error) {
	if s.api == nil {
		return UploadResult{}, errors.New("s3 api client is not configured")
	}
	if err := s.checkLease(ctx, container, name, opts.Condition); err != nil {
		return UploadResult{}, err
	}

	if opts.Condition.Kind == CondNone && s.uploader != nil {
		return s.uploadUnconditional(ctx, container, name, data, opts.ContentType)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket(container)),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	switch opts.Condition.Kind {
	case CondIfMatch:
		input.IfMatch = aws.String(opts.Condition.Value)
	case CondIfNoneMatch:
		input.IfNoneMatch = aws.String(opts.Condition.Value)
	}

	reqCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	out, err := s.api.PutObject(reqCtx, input)
	if err != nil {
		return UploadResult{}, fmt.Errorf("put object: %w", s3StatusError(err))
	}
	result := UploadResult{}
	if out.ETag != nil {
		result.ETag = ETag(*out.ETag)
	}
	return result, nil
}

func (s *S3Store) uploadUnconditional(ctx context.Context, container, name string, data []byte, contentType string) (UploadResult, error) {
	input := &transfermanager.UploadObjectInput{
		Bucket:        aws.String(s.bucket(container)),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	out, err := s.uploader.UploadObject(ctx, input)
	if err != nil {
		return UploadResult{}, fmt.Errorf("put object: %w", s3StatusError(err))
	}
	result := UploadResult{}
	if out != nil && out.ETag != nil {
		result.ETag = ETag(*out.ETag)
	}
	return result, nil
}

// checkLease applies the lease rules to a write. The check and the write
// are separate requests, so a lease taken between them is not seen.
func (s *S3Store) checkLease(ctx context.Context, container, name string, cond Condition) error {
	doc, _, err := s.readLease(ctx, container, name)
	if err != nil {
		return err
	}
	leased := doc != nil && s.now().Before(doc.ExpiresAt)
	switch {
	case leased && cond.Kind != CondLease:
		return &StatusError{Status: http.StatusPreconditionFailed, Code: "LeaseIdMissing", Err: errPreconditionFailed}
	case leased && doc.ID != cond.Value:
		return &StatusError{Status: http.StatusPreconditionFailed, Code: "LeaseIdMismatchWithBlobOperation", Err: errPreconditionFailed}
	case !leased && cond.Kind == CondLease:
		return &StatusError{Status: http.StatusPreconditionFailed, Code: "LeaseNotPresentWithBlobOperation", Err: errPreconditionFailed}
	}
	return nil
}

func (s *S3Store) Download(ctx context.Context, container, name string) (DownloadResult, error) {
	if s.api == nil {
		return DownloadResult{}, errors.New("s3 api client is not configured")
	}
	reqCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.api.GetObject(reqCtx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket(container)),
		Key:    aws.String(name),
	})
	if err != nil {
		return DownloadResult{}, fmt.Errorf("get object: %w", s3StatusError(err))
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("read object body: %w", err)
	}
	result := DownloadResult{Data: data}
	if out.ETag != nil {
		result.ETag = ETag(*out.ETag)
	}
	if out.ContentType != nil {
		result.ContentType = *out.ContentType
	}
	return result, nil
}

func (s *S3Store) AcquireLease(ctx context.Context, container, name string, duration time.Duration, proposedID string) (string, error) {
	if s.api == nil {
		return "", errors.New("s3 api client is not configured")
	}
	if err := validateLeaseDuration(duration); err != nil {
		return "", err
	}

	headCtx, cancel := s.withTimeout(ctx)
	_, err := s.api.HeadObject(headCtx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket(container)),
		Key:    aws.String(name),
	})
	cancel()
	if err != nil {
		return "", fmt.Errorf("head object: %w", s3StatusError(err))
	}

	id := proposedID
	if id == "" {
		id = uuid.NewString()
	}
	doc := s3LeaseDocument{ID: id, ExpiresAt: s.now().Add(duration).UTC()}

	err = s.writeLease(ctx, container, name, doc, IfNotExists())
	if err == nil {
		return id, nil
	}
	if !IsPreconditionFailed(err) && !IsConflict(err) {
		return "", err
	}

	current, etag, err := s.readLease(ctx, container, name)
	if err != nil {
		return "", err
	}
	if current != nil && s.now().Before(current.ExpiresAt) && current.ID != proposedID {
		return "", newStatusError(http.StatusConflict, "LeaseAlreadyPresent")
	}
	cond := IfNotExists()
	if current != nil {
		cond = IfMatch(etag)
	}
	if err := s.writeLease(ctx, container, name, doc, cond); err != nil {
		if IsPreconditionFailed(err) || IsConflict(err) {
			return "", newStatusError(http.StatusConflict, "LeaseAlreadyPresent")
		}
		return "", err
	}
	return id, nil
}

func (s *S3Store) ReleaseLease(ctx context.Context, container, name, leaseID string) error {
	if s.api == nil {
		return errors.New("s3 api client is not configured")
	}
	doc, _, err := s.readLease(ctx, container, name)
	if err != nil {
		return err
	}
	if doc == nil || !s.now().Before(doc.ExpiresAt) {
		return newStatusError(http.StatusConflict, "LeaseNotPresentWithLeaseOperation")
	}
	if doc.ID != leaseID {
		return newStatusError(http.StatusConflict, "LeaseIdMismatchWithLeaseOperation")
	}

	reqCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.api.DeleteObject(reqCtx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket(container)),
		Key:    aws.String(s3LeasePrefix + name),
	}); err != nil {
		return fmt.Errorf("delete lease: %w", s3StatusError(err))
	}
	return nil
}

// readLease returns the lease document for name and its ETag, or a nil
// document when none exists.
func (s *S3Store) readLease(ctx context.Context, container, name string) (*s3LeaseDocument, ETag, error) {
	reqCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.api.GetObject(reqCtx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket(container)),
		Key:    aws.String(s3LeasePrefix + name),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) || IsNotFound(s3StatusError(err)) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("get lease: %w", s3StatusError(err))
	}
	defer out.Body.Close()
	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read lease: %w", err)
	}
	var doc s3LeaseDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, "", fmt.Errorf("decode lease: %w", err)
	}
	var etag ETag
	if out.ETag != nil {
		etag = ETag(*out.ETag)
	}
	return &doc, etag, nil
}

func (s *S3Store) writeLease(ctx context.Context, container, name string, doc s3LeaseDocument, cond Condition) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode lease: %w", err)
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket(container)),
		Key:           aws.String(s3LeasePrefix + name),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String("application/json"),
	}
	switch cond.Kind {
	case CondIfMatch:
		input.IfMatch = aws.String(cond.Value)
	case CondIfNoneMatch:
		input.IfNoneMatch = aws.String(cond.Value)
	}

	reqCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.api.PutObject(reqCtx, input); err != nil {
		return fmt.Errorf("put lease: %w", s3StatusError(err))
	}
	return nil
}

// s3StatusError lifts the HTTP status of an AWS response error into a
// StatusError carrying the API error code.
func s3StatusError(err error) error {
	var respErr *awshttp.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}
	code := ""
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}
	return &StatusError{Status: respErr.HTTPStatusCode(), Code: code, Err: err}
}
