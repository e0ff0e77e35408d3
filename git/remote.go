package git

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RemoteGit drives the object model of a hosted repository through its
// REST façade: blobs, trees, commits and branch references.
type RemoteGit interface {
	Owner() string
	Name() string

	Repository(ctx context.Context) (*Repository, error)

	GetRef(ctx context.Context, branch string) (*Ref, error)
	CreateRef(ctx context.Context, branch string, sha CommitSHA) (*Ref, error)
	// UpdateRef moves an existing branch. Unless force is set the remote
	// rejects updates that are not fast-forwards.
	UpdateRef(ctx context.Context, branch string, sha CommitSHA, force bool) (*Ref, error)

	CreateBlob(ctx context.Context, content []byte) (BlobSHA, error)
	// CreateTree layers entries on top of base. Paths not mentioned in
	// entries are inherited from base unchanged.
	CreateTree(ctx context.Context, base TreeSHA, entries []BlobRef) (*TreeRef, error)
	CreateCommit(ctx context.Context, message string, tree TreeSHA, parents []CommitSHA) (*CommitRef, error)
	GetCommit(ctx context.Context, sha CommitSHA) (*CommitRef, error)

	// PutFile and DeleteFile are the single file convenience endpoints.
	// Each produces one commit on the target branch.
	PutFile(ctx context.Context, req FileWrite) (*FileWriteResult, error)
	DeleteFile(ctx context.Context, req FileDelete) (*CommitRef, error)
}

type (
	CommitSHA string
	TreeSHA   string
	BlobSHA   string
)

// EmptyTreeSHA identifies the tree object with no entries. It is the same
// for every repository.
const EmptyTreeSHA TreeSHA = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

const (
	ModeRegular = "100644"
	TypeBlob    = "blob"
)

type Repository struct {
	FullName      string
	DefaultBranch string
	HTMLURL       string
	Private       bool
}

type Ref struct {
	Name string
	Hash CommitSHA
}

// BlobRef is a tree entry pointing at an uploaded blob.
type BlobRef struct {
	Path string
	SHA  BlobSHA
	Mode string
	Type string
}

func NewBlobRef(path string, sha BlobSHA) BlobRef {
	return BlobRef{
		Path: path,
		SHA:  sha,
		Mode: ModeRegular,
		Type: TypeBlob,
	}
}

type TreeRef struct {
	SHA         TreeSHA
	BaseTreeSHA TreeSHA
	Entries     []BlobRef
}

type CommitRef struct {
	SHA     CommitSHA
	TreeSHA TreeSHA
	Parents []CommitSHA
	Message string
	HTMLURL string
}

type FileWrite struct {
	Path    string
	Message string
	Content []byte
	Branch  string
	// SHA of the blob being replaced, required when the path already exists.
	SHA BlobSHA
}

type FileWriteResult struct {
	ContentSHA BlobSHA
	Commit     CommitRef
}

type FileDelete struct {
	Path    string
	Message string
	Branch  string
	SHA     BlobSHA
}

// BranchRefName converts a short branch name to its fully qualified form.
func BranchRefName(branch string) string {
	if strings.HasPrefix(branch, "refs/") {
		return branch
	}
	return "refs/heads/" + branch
}

// ShortBranchName strips the refs/heads/ prefix if present.
func ShortBranchName(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}

func ValidateBranchName(branch string) error {
	if branch == "" {
		return errors.New("branch name is required")
	}
	name := ShortBranchName(branch)
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") ||
		strings.HasSuffix(name, ".lock") || strings.Contains(name, "..") ||
		strings.Contains(name, "//") || strings.ContainsAny(name, " ~^:?*[\\") {
		return fmt.Errorf("invalid branch name %q", branch)
	}
	return nil
}
