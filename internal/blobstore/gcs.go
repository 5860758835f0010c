package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GCSOptions struct {
	Bucket          string
	CredentialsPath string
}

// GCSStore keeps every container as an object prefix inside one bucket.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// NewGCS builds the client from a credentials file when given, otherwise
// from application default credentials.
func NewGCS(ctx context.Context, opt GCSOptions) (*GCSStore, error) {
	if opt.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	var clientOpt option.ClientOption
	if opt.CredentialsPath != "" {
		clientOpt = option.WithCredentialsFile(opt.CredentialsPath)
	} else {
		creds, err := google.FindDefaultCredentials(ctx, storage.ScopeReadWrite)
		if err != nil {
			return nil, fmt.Errorf("find default gcp credentials: %w", err)
		}
		clientOpt = option.WithCredentials(creds)
	}

	client, err := storage.NewClient(ctx, clientOpt)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &GCSStore{client: client, bucket: client.Bucket(opt.Bucket), name: opt.Bucket}, nil
}

func (g *GCSStore) Close() error {
	return g.client.Close()
}

func (g *GCSStore) CreateContainer(ctx context.Context, container string) error {
	if err := ValidateContainer(container); err != nil {
		return err
	}
	w := g.bucket.Object(markerName(container)).NewWriter(ctx)
	if err := w.Close(); err != nil {
		return mapGCSError("create container", err)
	}
	return nil
}

func (g *GCSStore) Put(ctx context.Context, container, key string, data []byte, contentType string) (string, error) {
	if err := validate(container, key); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "text/plain"
	}

	name := objectName(container, key)
	w := g.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", mapGCSError("put", err)
	}
	if err := w.Close(); err != nil {
		return "", mapGCSError("put", err)
	}
	return fmt.Sprintf("gs://%s/%s", g.name, name), nil
}

func (g *GCSStore) Get(ctx context.Context, container, key string) ([]byte, error) {
	if err := validate(container, key); err != nil {
		return nil, err
	}

	r, err := g.bucket.Object(objectName(container, key)).NewReader(ctx)
	if err != nil {
		return nil, mapGCSError("get", err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, mapGCSError("read body", err)
	}
	return b, nil
}

func (g *GCSStore) Delete(ctx context.Context, container, key string) error {
	if err := validate(container, key); err != nil {
		return err
	}
	if err := g.bucket.Object(objectName(container, key)).Delete(ctx); err != nil {
		return mapGCSError("delete", err)
	}
	return nil
}

func (g *GCSStore) DeleteContainer(ctx context.Context, container string) error {
	if err := ValidateContainer(container); err != nil {
		return err
	}

	it := g.bucket.Objects(ctx, &storage.Query{Prefix: container + "/"})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return mapGCSError("list container", err)
		}
		if err := g.bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return mapGCSError("delete container", err)
		}
	}

	err := g.bucket.Object(markerName(container)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return mapGCSError("delete container", err)
	}
	return nil
}

func mapGCSError(op string, err error) error {
	if mapped := fromContext(op, err); mapped != nil {
		return mapped
	}
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusNotFound {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		for _, item := range gerr.Errors {
			if item.Reason == "quotaExceeded" || item.Reason == "storageQuotaExceeded" {
				return fmt.Errorf("%s: %w: %s", op, ErrQuotaExceeded, gerr.Message)
			}
		}
	}
	return unavailable(op, err)
}
