package git

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/go-github/v72/github"
)

// Caller is the transport used by Remote. *transport.Transport satisfies it.
type Caller interface {
	Do(ctx context.Context, method, path string, body any, out any) error
}

var _ RemoteGit = (*Remote)(nil)

func NewRemote(caller Caller, owner, name string) *Remote {
	return &Remote{
		caller: caller,
		owner:  owner,
		name:   name,
	}
}

type Remote struct {
	caller Caller
	owner  string
	name   string
}

func (r *Remote) Owner() string {
	return r.owner
}

func (r *Remote) Name() string {
	return r.name
}

func (r *Remote) repoPath(parts ...string) string {
	p := fmt.Sprintf("repos/%s/%s", url.PathEscape(r.owner), url.PathEscape(r.name))
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// escapePath escapes each segment of a slash separated path.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// Repository implements RemoteGit.
func (r *Remote) Repository(ctx context.Context) (*Repository, error) {
	var repo github.Repository
	if err := r.caller.Do(ctx, http.MethodGet, r.repoPath(), nil, &repo); err != nil {
		return nil, err
	}

	return &Repository{
		FullName:      repo.GetFullName(),
		DefaultBranch: repo.GetDefaultBranch(),
		HTMLURL:       repo.GetHTMLURL(),
		Private:       repo.GetPrivate(),
	}, nil
}

// GetRef implements RemoteGit.
func (r *Remote) GetRef(ctx context.Context, branch string) (*Ref, error) {
	var ref github.Reference
	path := r.repoPath("git", "ref", "heads", escapePath(ShortBranchName(branch)))
	if err := r.caller.Do(ctx, http.MethodGet, path, nil, &ref); err != nil {
		return nil, err
	}
	return refFromGitHub(&ref)
}

// CreateRef implements RemoteGit.
func (r *Remote) CreateRef(ctx context.Context, branch string, sha CommitSHA) (*Ref, error) {
	body := struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}{
		Ref: BranchRefName(branch),
		SHA: string(sha),
	}

	var ref github.Reference
	if err := r.caller.Do(ctx, http.MethodPost, r.repoPath("git", "refs"), body, &ref); err != nil {
		return nil, err
	}
	log.Info("Created ref", "repo", r.owner+"/"+r.name, "ref", body.Ref, "sha", sha)
	return refFromGitHub(&ref)
}

// UpdateRef implements RemoteGit.
func (r *Remote) UpdateRef(ctx context.Context, branch string, sha CommitSHA, force bool) (*Ref, error) {
	body := struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}{
		SHA:   string(sha),
		Force: force,
	}

	var ref github.Reference
	path := r.repoPath("git", "refs", "heads", escapePath(ShortBranchName(branch)))
	if err := r.caller.Do(ctx, http.MethodPatch, path, body, &ref); err != nil {
		return nil, err
	}
	log.Info("Updated ref", "repo", r.owner+"/"+r.name, "branch", branch, "sha", sha, "force", force)
	return refFromGitHub(&ref)
}

func refFromGitHub(ref *github.Reference) (*Ref, error) {
	sha := ref.GetObject().GetSHA()
	if sha == "" {
		return nil, fmt.Errorf("reference %q has no target", ref.GetRef())
	}
	return &Ref{
		Name: ref.GetRef(),
		Hash: CommitSHA(sha),
	}, nil
}

// CreateBlob implements RemoteGit.
// Content is always sent base64 encoded so binary files survive the trip.
func (r *Remote) CreateBlob(ctx context.Context, content []byte) (BlobSHA, error) {
	body := &github.Blob{
		Content:  github.Ptr(base64.StdEncoding.EncodeToString(content)),
		Encoding: github.Ptr("base64"),
	}

	var blob github.Blob
	if err := r.caller.Do(ctx, http.MethodPost, r.repoPath("git", "blobs"), body, &blob); err != nil {
		return "", err
	}
	if blob.GetSHA() == "" {
		return "", errors.New("remote returned a blob without a sha")
	}
	return BlobSHA(blob.GetSHA()), nil
}

type createTreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

// CreateTree implements RemoteGit.
func (r *Remote) CreateTree(ctx context.Context, base TreeSHA, entries []BlobRef) (*TreeRef, error) {
	body := struct {
		BaseTree string            `json:"base_tree,omitempty"`
		Tree     []createTreeEntry `json:"tree"`
	}{
		BaseTree: string(base),
		Tree:     make([]createTreeEntry, 0, len(entries)),
	}
	for _, e := range entries {
		mode, typ := e.Mode, e.Type
		if mode == "" {
			mode = ModeRegular
		}
		if typ == "" {
			typ = TypeBlob
		}
		body.Tree = append(body.Tree, createTreeEntry{
			Path: e.Path,
			Mode: mode,
			Type: typ,
			SHA:  string(e.SHA),
		})
	}

	var tree github.Tree
	if err := r.caller.Do(ctx, http.MethodPost, r.repoPath("git", "trees"), body, &tree); err != nil {
		return nil, err
	}
	if tree.GetSHA() == "" {
		return nil, errors.New("remote returned a tree without a sha")
	}

	return &TreeRef{
		SHA:         TreeSHA(tree.GetSHA()),
		BaseTreeSHA: base,
		Entries:     append([]BlobRef(nil), entries...),
	}, nil
}

// CreateCommit implements RemoteGit.
func (r *Remote) CreateCommit(ctx context.Context, message string, tree TreeSHA, parents []CommitSHA) (*CommitRef, error) {
	body := struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}{
		Message: message,
		Tree:    string(tree),
		Parents: make([]string, 0, len(parents)),
	}
	for _, p := range parents {
		body.Parents = append(body.Parents, string(p))
	}

	var commit github.Commit
	if err := r.caller.Do(ctx, http.MethodPost, r.repoPath("git", "commits"), body, &commit); err != nil {
		return nil, err
	}
	out := commitFromGitHub(&commit)
	if out.SHA == "" {
		return nil, errors.New("remote returned a commit without a sha")
	}
	if out.TreeSHA == "" {
		out.TreeSHA = tree
	}
	return out, nil
}

// GetCommit implements RemoteGit.
func (r *Remote) GetCommit(ctx context.Context, sha CommitSHA) (*CommitRef, error) {
	var commit github.Commit
	if err := r.caller.Do(ctx, http.MethodGet, r.repoPath("git", "commits", url.PathEscape(string(sha))), nil, &commit); err != nil {
		return nil, err
	}
	return commitFromGitHub(&commit), nil
}

func commitFromGitHub(c *github.Commit) *CommitRef {
	out := &CommitRef{
		SHA:     CommitSHA(c.GetSHA()),
		TreeSHA: TreeSHA(c.GetTree().GetSHA()),
		Message: c.GetMessage(),
		HTMLURL: c.GetHTMLURL(),
	}
	for _, p := range c.Parents {
		out.Parents = append(out.Parents, CommitSHA(p.GetSHA()))
	}
	return out
}

// PutFile implements RemoteGit.
func (r *Remote) PutFile(ctx context.Context, req FileWrite) (*FileWriteResult, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(req.Message),
		Content: req.Content,
	}
	if req.Branch != "" {
		opts.Branch = github.Ptr(ShortBranchName(req.Branch))
	}
	if req.SHA != "" {
		opts.SHA = github.Ptr(string(req.SHA))
	}

	var resp github.RepositoryContentResponse
	if err := r.caller.Do(ctx, http.MethodPut, r.repoPath("contents", escapePath(req.Path)), opts, &resp); err != nil {
		return nil, err
	}

	out := &FileWriteResult{
		ContentSHA: BlobSHA(resp.GetContent().GetSHA()),
		Commit:     *commitFromGitHub(&resp.Commit),
	}
	if out.ContentSHA == "" {
		return nil, fmt.Errorf("remote returned no content sha for %s", req.Path)
	}
	return out, nil
}

// DeleteFile implements RemoteGit.
func (r *Remote) DeleteFile(ctx context.Context, req FileDelete) (*CommitRef, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(req.Message),
		SHA:     github.Ptr(string(req.SHA)),
	}
	if req.Branch != "" {
		opts.Branch = github.Ptr(ShortBranchName(req.Branch))
	}

	var resp github.RepositoryContentResponse
	if err := r.caller.Do(ctx, http.MethodDelete, r.repoPath("contents", escapePath(req.Path)), opts, &resp); err != nil {
		return nil, err
	}
	return commitFromGitHub(&resp.Commit), nil
}
