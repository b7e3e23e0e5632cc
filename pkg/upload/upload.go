// Package upload ships user media to object storage, shrinking images
// on the way. Upload failures are reported but never fatal: callers
// fall back to inlining the original payload.
package upload

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNoUploader reports that no object storage is configured.
var ErrNoUploader = errors.New("no uploader configured")

// Uploader stores a blob under the given path and returns a public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, path, contentType string) (string, error)
}

// Result is the outcome of an upload attempt. Exactly one of URL or
// Err is meaningful; Ok tells which.
type Result struct {
	Ok  bool
	URL string
	Err error
}

// Attempt uploads data and folds the outcome into a Result. A nil
// uploader yields a failed Result so callers take the inline path.
func Attempt(ctx context.Context, up Uploader, data []byte, path, contentType string) Result {
	if up == nil {
		return Result{Ok: false, Err: ErrNoUploader}
	}
	url, err := up.Upload(ctx, data, path, contentType)
	if err != nil {
		slog.Warn("Media upload failed, falling back to inline payload", "path", path, "error", err)
		return Result{Ok: false, Err: err}
	}
	return Result{Ok: true, URL: url}
}
