package blob

import (
	"context"
	"io"
	"time"
)

// Client is the read-only view of an object store that the cache needs.
// Any backend exposing list, head and get is interchangeable.
type Client interface {
	// ListObjects returns metadata for all objects under the given key prefix.
	ListObjects(ctx context.Context, prefix string) ([]*ObjectInfo, error)
	// HeadObject returns metadata for a single object, or (nil, nil) when
	// the object does not exist.
	HeadObject(ctx context.Context, key string) (*ObjectInfo, error)
	// GetObject fetches object content as a stream.
	GetObject(ctx context.Context, key string) (*GetObjectResponse, error)
}

type ObjectInfo struct {
	Key          string `json:"key"`
	ETag         string `json:"etag"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified"`
}

type GetObjectResponse struct {
	Body         io.ReadCloser
	ETag         string
	Size         int64
	LastModified time.Time
}
