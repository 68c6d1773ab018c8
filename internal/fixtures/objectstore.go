package fixtures

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type ObjectStoreOptions struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// ObjectStore reads <prefix>/<templateID>.json from an S3-compatible bucket, falling
// back to <prefix>/default.json.
type ObjectStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectStore creates an S3 client for the bucket. No request is made until Load.
func NewObjectStore(opts ObjectStoreOptions) (*ObjectStore, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("object store fixtures need an endpoint and a bucket")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &ObjectStore{
		client: client,
		bucket: opts.Bucket,
		prefix: opts.Prefix,
	}, nil
}

func (s *ObjectStore) Load(ctx context.Context, templateID string) (Template, error) {
	for _, name := range []string{templateID + ".json", defaultFixture} {
		key := path.Join(s.prefix, name)
		raw, err := s.read(ctx, key)
		if isNoSuchKey(err) {
			continue
		}
		if err != nil {
			return Template{}, fmt.Errorf("read fixture s3://%s/%s: %w", s.bucket, key, err)
		}
		return Decode(raw)
	}
	return Template{}, fmt.Errorf("%w: %s", ErrFixtureNotFound, templateID)
}

func (s *ObjectStore) read(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
