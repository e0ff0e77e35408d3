package upload

import "github.com/oklog/ulid/v2"

// NewUploadID returns a sortable identifier for one upload.
func NewUploadID() string {
	return ulid.Make().String()
}
