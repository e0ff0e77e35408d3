package git

import "github.com/ocuroot/gitdrop/transport"

// IsMissingRef reports whether a ref lookup failed because the branch, or
// any commit at all, does not exist yet.
func IsMissingRef(err error) bool {
	return transport.IsNotFound(err) || transport.IsEmptyRepository(err)
}
