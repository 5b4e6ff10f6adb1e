// Package datasource holds data sources that resources can be fetched from
// through the dataSource loader.
package datasource

import (
	"context"
	"errors"
	"fmt"

	"github.com/pitabwire/util"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	// Register the bucket URL schemes OpenBlob understands.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// OptionKeyPrefix names the request option prepended to every blob key.
const OptionKeyPrefix = "keyPrefix"

// ErrNotFound is returned when the requested blob does not exist.
var ErrNotFound = errors.New("resource not found in data source")

// Blob serves resources out of a gocloud.dev bucket. The direct model names
// the key, either as a string or as a map with a "key" entry.
type Blob struct {
	bucket *blob.Bucket
	owned  bool
}

// NewBlob wraps an already opened bucket. The caller keeps ownership of it.
func NewBlob(bucket *blob.Bucket) *Blob {
	return &Blob{bucket: bucket}
}

// OpenBlob opens the bucket at bucketURL, e.g. "file:///srv/resources" or
// "mem://". The bucket is closed by Close.
func OpenBlob(ctx context.Context, bucketURL string) (*Blob, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("opening bucket %s: %w", bucketURL, err)
	}
	return &Blob{bucket: bucket, owned: true}, nil
}

// Get reads the blob named by directModel.
func (b *Blob) Get(ctx context.Context, directModel any, options map[string]any) (string, error) {
	key, err := keyOf(directModel)
	if err != nil {
		return "", err
	}
	if prefix, ok := options[OptionKeyPrefix].(string); ok {
		key = prefix + key
	}

	data, err := b.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("reading blob %s: %w", key, err)
	}

	util.Log(ctx).WithField("key", key).WithField("bytes", len(data)).Debug("blob resource read")
	return string(data), nil
}

// Close releases the bucket if it was opened by OpenBlob.
func (b *Blob) Close() error {
	if !b.owned {
		return nil
	}
	return b.bucket.Close()
}

func keyOf(directModel any) (string, error) {
	switch model := directModel.(type) {
	case string:
		if model != "" {
			return model, nil
		}
	case map[string]any:
		if key, ok := model["key"].(string); ok && key != "" {
			return key, nil
		}
	case map[string]string:
		if key := model["key"]; key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("direct model %v does not name a blob key", directModel)
}
