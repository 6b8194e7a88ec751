package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/lease"

	appconfig "photostore/internal/config"
)

// AzureStore is a Backend over Azure Blob Storage.
type AzureStore struct {
	client *azblob.Client
}

// NewAzureStore builds a client from, in order of preference, a connection
// string, a SAS token or a shared account key.
func NewAzureStore(cfg appconfig.AzureConfig) (*AzureStore, error) {
	return newAzureStore(cfg, nil)
}

func newAzureStore(cfg appconfig.AzureConfig, transport policy.Transporter) (*AzureStore, error) {
	var opts *azblob.ClientOptions
	if transport != nil {
		opts = &azblob.ClientOptions{ClientOptions: azcore.ClientOptions{Transport: transport}}
	}

	if cfg.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, opts)
		if err != nil {
			return nil, fmt.Errorf("azure: create client: %w", err)
		}
		return &AzureStore{client: client}, nil
	}

	if cfg.Account == "" && cfg.Endpoint == "" {
		return nil, errors.New("azure: account or endpoint is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Account)
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.SASToken != "":
		withSAS, serr := appendSASToken(endpoint, cfg.SASToken)
		if serr != nil {
			return nil, serr
		}
		client, err = azblob.NewClientWithNoCredential(withSAS, opts)
	case cfg.AccountKey != "":
		cred, credErr := azblob.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("azure: build credentials: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(endpoint, cred, opts)
	default:
		return nil, errors.New("azure: connection string, account key or SAS token required")
	}
	if err != nil {
		return nil, fmt.Errorf("azure: create client: %w", err)
	}
	return &AzureStore{client: client}, nil
}

func appendSASToken(endpoint, sas string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("azure: parse endpoint: %w", err)
	}
	sas = strings.TrimPrefix(sas, "?")
	if u.RawQuery != "" {
		u.RawQuery = u.RawQuery + "&" + sas
	} else {
		u.RawQuery = sas
	}
	return u.String(), nil
}

func (s *AzureStore) Name() string { return "azure" }

func (s *AzureStore) containerClient(name string) *container.Client {
	return s.client.ServiceClient().NewContainerClient(name)
}

func (s *AzureStore) EnsureContainer(ctx context.Context, name string) error {
	_, err := s.containerClient(name).Create(ctx, nil)
	if err != nil && !isContainerExists(err) {
		return fmt.Errorf("azure: create container: %w", azureStatusError(err))
	}
	return nil
}

// SetPublicBlobAccess lets anyone read individual blobs while keeping the
// container listing and metadata private.
func (s *AzureStore) SetPublicBlobAccess(ctx context.Context, name string) error {
	_, err := s.containerClient(name).SetAccessPolicy(ctx, &container.SetAccessPolicyOptions{
		Access: to.Ptr(container.PublicAccessTypeBlob),
	})
	if err != nil {
		return fmt.Errorf("azure: set access policy: %w", azureStatusError(err))
	}
	return nil
}

func (s *AzureStore) ListBlobs(ctx context.Context, name string) ([]BlobItem, error) {
	cc := s.containerClient(name)
	pager := cc.NewListBlobsFlatPager(nil)

	items := make([]BlobItem, 0)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure: list blobs: %w", azureStatusError(err))
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			entry := BlobItem{
				Name: *item.Name,
				URL:  cc.NewBlobClient(*item.Name).URL(),
				Kind: KindUnknown,
			}
			if props := item.Properties; props != nil {
				if props.BlobType != nil {
					entry.Kind = azureBlobKind(*props.BlobType)
				}
				if props.ETag != nil {
					entry.ETag = ETag(*props.ETag)
				}
				if props.ContentLength != nil {
					entry.Size = *props.ContentLength
				}
			}
			items = append(items, entry)
		}
	}
	return items, nil
}

func azureBlobKind(t blob.BlobType) BlobKind {
	switch t {
	case blob.BlobTypeBlockBlob:
		return KindBlock
	case blob.BlobTypePageBlob:
		return KindPage
	case blob.BlobTypeAppendBlob:
		return KindAppend
	default:
		return KindUnknown
	}
}

func (s *AzureStore) BlobURL(containerName, name string) string {
	return s.containerClient(containerName).NewBlobClient(name).URL()
}

func (s *AzureStore) Properties(ctx context.Context, containerName, name string) (BlobProperties, error) {
	resp, err := s.containerClient(containerName).NewBlobClient(name).GetProperties(ctx, nil)
	if err != nil {
		return BlobProperties{}, fmt.Errorf("azure: get properties: %w", azureStatusError(err))
	}
	props := BlobProperties{}
	if resp.ETag != nil {
		props.ETag = ETag(*resp.ETag)
	}
	if resp.ContentLength != nil {
		props.Size = *resp.ContentLength
	}
	if resp.ContentType != nil {
		props.ContentType = *resp.ContentType
	}
	if resp.LastModified != nil {
		props.LastModified = resp.LastModified.UTC()
	}
	if resp.LeaseState != nil {
		props.Leased = *resp.LeaseState == lease.StateTypeLeased
	}
	return props, nil
}

func (s *AzureStore) Upload(ctx context.Context, containerName, name string, data []byte, opts UploadOptions) (UploadResult, error) {
	uploadOpts := &blockblob.UploadOptions{}
	if opts.ContentType != "" {
		uploadOpts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: to.Ptr(opts.ContentType)}
	}
	uploadOpts.AccessConditions = azureAccessConditions(opts.Condition)

	bb := s.containerClient(containerName).NewBlockBlobClient(name)
	resp, err := bb.Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), uploadOpts)
	if err != nil {
		return UploadResult{}, fmt.Errorf("azure: upload blob: %w", azureStatusError(err))
	}
	result := UploadResult{}
	if resp.ETag != nil {
		result.ETag = ETag(*resp.ETag)
	}
	return result, nil
}

func azureAccessConditions(cond Condition) *blob.AccessConditions {
	switch cond.Kind {
	case CondIfMatch:
		return &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfMatch: to.Ptr(azcore.ETag(cond.Value))},
		}
	case CondIfNoneMatch:
		return &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: to.Ptr(azcore.ETag(cond.Value))},
		}
	case CondLease:
		return &blob.AccessConditions{
			LeaseAccessConditions: &blob.LeaseAccessConditions{LeaseID: to.Ptr(cond.Value)},
		}
	default:
		return nil
	}
}

func (s *AzureStore) Download(ctx context.Context, containerName, name string) (DownloadResult, error) {
	resp, err := s.containerClient(containerName).NewBlobClient(name).DownloadStream(ctx, nil)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("azure: download blob: %w", azureStatusError(err))
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("azure: read blob: %w", err)
	}
	result := DownloadResult{Data: data}
	if resp.ETag != nil {
		result.ETag = ETag(*resp.ETag)
	}
	if resp.ContentType != nil {
		result.ContentType = *resp.ContentType
	}
	return result, nil
}

func (s *AzureStore) leaseClient(containerName, name, leaseID string) (*lease.BlobClient, error) {
	var opts *lease.BlobClientOptions
	if leaseID != "" {
		opts = &lease.BlobClientOptions{LeaseID: to.Ptr(leaseID)}
	}
	bc := s.containerClient(containerName).NewBlobClient(name)
	lc, err := lease.NewBlobClient(bc, opts)
	if err != nil {
		return nil, fmt.Errorf("azure: lease client: %w", err)
	}
	return lc, nil
}

func (s *AzureStore) AcquireLease(ctx context.Context, containerName, name string, duration time.Duration, proposedID string) (string, error) {
	if err := validateLeaseDuration(duration); err != nil {
		return "", err
	}
	lc, err := s.leaseClient(containerName, name, proposedID)
	if err != nil {
		return "", err
	}
	resp, err := lc.AcquireLease(ctx, int32(duration/time.Second), nil)
	if err != nil {
		return "", fmt.Errorf("azure: acquire lease: %w", azureStatusError(err))
	}
	if resp.LeaseID != nil {
		return *resp.LeaseID, nil
	}
	if id := lc.LeaseID(); id != nil {
		return *id, nil
	}
	return "", errors.New("azure: acquire lease: missing lease id")
}

func (s *AzureStore) ReleaseLease(ctx context.Context, containerName, name, leaseID string) error {
	lc, err := s.leaseClient(containerName, name, leaseID)
	if err != nil {
		return err
	}
	if _, err := lc.ReleaseLease(ctx, nil); err != nil {
		return fmt.Errorf("azure: release lease: %w", azureStatusError(err))
	}
	return nil
}

func isContainerExists(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusConflict && strings.EqualFold(respErr.ErrorCode, "ContainerAlreadyExists")
	}
	return false
}

// azureStatusError lifts the status of an azcore response error into a
// StatusError so callers can classify it without importing azcore.
func azureStatusError(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return &StatusError{Status: respErr.StatusCode, Code: respErr.ErrorCode, Err: err}
	}
	return err
}
