package fakehub

import (
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/storage/memory"
)

// Repo is a hosted repository. All methods lock the owning server.
type Repo struct {
	Owner         string
	Name          string
	DefaultBranch string

	server *Server
	store  *memory.Storage
	refs   map[string]plumbing.Hash
}

// CommitInfo is a decoded commit, for assertions.
type CommitInfo struct {
	SHA     string
	Tree    string
	Parents []string
	Message string
}

var errObjectNotFound = errors.New("object not found")

// CreateRepo registers a repository without any commits.
func (s *Server) CreateRepo(owner, name, defaultBranch string) *Repo {
	if defaultBranch == "" {
		defaultBranch = "main"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	repo := &Repo{
		Owner:         owner,
		Name:          name,
		DefaultBranch: defaultBranch,
		server:        s,
		store:         memory.NewStorage(),
		refs:          make(map[string]plumbing.Hash),
	}
	s.repos[repoKey(owner, name)] = repo
	return repo
}

func (s *Server) Repo(owner, name string) *Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repos[repoKey(owner, name)]
}

func repoKey(owner, name string) string {
	return strings.ToLower(owner + "/" + name)
}

func (r *Repo) FullName() string {
	return r.Owner + "/" + r.Name
}

// Empty reports whether the repository has no branches.
func (r *Repo) Empty() bool {
	r.server.mu.Lock()
	defer r.server.mu.Unlock()
	return r.empty()
}

func (r *Repo) empty() bool {
	return len(r.refs) == 0
}

// Tip returns the commit a branch points at, or "" if it does not exist.
func (r *Repo) Tip(branch string) string {
	r.server.mu.Lock()
	defer r.server.mu.Unlock()

	h, ok := r.refs[branch]
	if !ok {
		return ""
	}
	return h.String()
}

// Seed commits files on top of branch, creating the branch if needed.
func (r *Repo) Seed(branch, message string, files map[string]string) (string, error) {
	r.server.mu.Lock()
	defer r.server.mu.Unlock()

	if branch == "" {
		branch = r.DefaultBranch
	}

	entries := make(map[string]treeFile)
	var parents []plumbing.Hash
	if tip, ok := r.refs[branch]; ok {
		parents = []plumbing.Hash{tip}
		commit, err := r.commitObject(tip)
		if err != nil {
			return "", err
		}
		if err := r.collectTreeFiles(commit.TreeHash, entries); err != nil {
			return "", err
		}
	}

	for p, content := range files {
		hash, err := r.storeBlob([]byte(content))
		if err != nil {
			return "", err
		}
		entries[p] = treeFile{hash: hash, mode: filemode.Regular}
	}

	treeHash, err := r.buildTreeFromFiles(entries)
	if err != nil {
		return "", err
	}
	commitHash, err := r.storeCommit(message, treeHash, parents)
	if err != nil {
		return "", err
	}
	r.refs[branch] = commitHash
	return commitHash.String(), nil
}

// Files returns the content of every file in the tree of a commit.
func (r *Repo) Files(commitSHA string) (map[string]string, error) {
	r.server.mu.Lock()
	defer r.server.mu.Unlock()

	hash, ok := plumbing.FromHex(commitSHA)
	if !ok {
		return nil, fmt.Errorf("invalid hash: %v", commitSHA)
	}
	commit, err := r.commitObject(hash)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]treeFile)
	if err := r.collectTreeFiles(commit.TreeHash, entries); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(entries))
	for p, e := range entries {
		content, err := r.blobContent(e.hash)
		if err != nil {
			return nil, err
		}
		out[p] = string(content)
	}
	return out, nil
}

func (r *Repo) Commit(sha string) (CommitInfo, error) {
	r.server.mu.Lock()
	defer r.server.mu.Unlock()

	hash, ok := plumbing.FromHex(sha)
	if !ok {
		return CommitInfo{}, fmt.Errorf("invalid hash: %v", sha)
	}
	commit, err := r.commitObject(hash)
	if err != nil {
		return CommitInfo{}, err
	}
	return commitInfo(hash, commit), nil
}

// History follows first parents from the branch tip, newest first.
func (r *Repo) History(branch string) ([]CommitInfo, error) {
	r.server.mu.Lock()
	defer r.server.mu.Unlock()

	hash, ok := r.refs[branch]
	if !ok {
		return nil, fmt.Errorf("branch %s not found", branch)
	}

	var out []CommitInfo
	for !hash.IsZero() {
		commit, err := r.commitObject(hash)
		if err != nil {
			return nil, err
		}
		out = append(out, commitInfo(hash, commit))
		if len(commit.ParentHashes) == 0 {
			break
		}
		hash = commit.ParentHashes[0]
	}
	return out, nil
}

func commitInfo(hash plumbing.Hash, commit *object.Commit) CommitInfo {
	info := CommitInfo{
		SHA:     hash.String(),
		Tree:    commit.TreeHash.String(),
		Message: commit.Message,
	}
	for _, p := range commit.ParentHashes {
		info.Parents = append(info.Parents, p.String())
	}
	return info
}

// Object storage. Callers hold the server lock.

func (r *Repo) storeBlob(content []byte) (plumbing.Hash, error) {
	blob := r.store.NewEncodedObject()
	blob.SetType(plumbing.BlobObject)
	writer, err := blob.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to create blob writer: %w", err)
	}
	if _, err := writer.Write(content); err != nil {
		writer.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to write blob: %w", err)
	}
	writer.Close()

	hash, err := r.store.SetEncodedObject(blob)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store blob: %w", err)
	}
	return hash, nil
}

func (r *Repo) blobContent(hash plumbing.Hash) ([]byte, error) {
	blob, err := r.store.EncodedObject(plumbing.BlobObject, hash)
	if err != nil {
		return nil, errObjectNotFound
	}
	reader, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to get blob reader: %w", err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func (r *Repo) hasBlob(hash plumbing.Hash) bool {
	_, err := r.store.EncodedObject(plumbing.BlobObject, hash)
	return err == nil
}

func (r *Repo) storeCommit(message string, tree plumbing.Hash, parents []plumbing.Hash) (plumbing.Hash, error) {
	signature := object.Signature{
		Name:  "fakehub",
		Email: "fakehub@example.invalid",
		When:  r.server.now(),
	}
	commit := &object.Commit{
		Author:       signature,
		Committer:    signature,
		Message:      message,
		TreeHash:     tree,
		ParentHashes: parents,
	}

	commitObj := r.store.NewEncodedObject()
	commitObj.SetType(plumbing.CommitObject)
	if err := commit.Encode(commitObj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to encode commit: %w", err)
	}

	hash, err := r.store.SetEncodedObject(commitObj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store commit: %w", err)
	}
	return hash, nil
}

func (r *Repo) commitObject(hash plumbing.Hash) (*object.Commit, error) {
	obj, err := r.store.EncodedObject(plumbing.CommitObject, hash)
	if err != nil {
		return nil, errObjectNotFound
	}
	commit, err := object.DecodeCommit(r.store, obj)
	if err != nil {
		return nil, fmt.Errorf("failed to decode commit: %w", err)
	}
	return commit, nil
}

func (r *Repo) treeObject(hash plumbing.Hash) (*object.Tree, error) {
	if hash == emptyTreeHash {
		return &object.Tree{}, nil
	}
	obj, err := r.store.EncodedObject(plumbing.TreeObject, hash)
	if err != nil {
		return nil, errObjectNotFound
	}
	tree, err := object.DecodeTree(r.store, obj)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	return tree, nil
}

// isAncestor reports whether ancestor is reachable from descendant.
func (r *Repo) isAncestor(ancestor, descendant plumbing.Hash) (bool, error) {
	seen := make(map[plumbing.Hash]bool)
	queue := []plumbing.Hash{descendant}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == ancestor {
			return true, nil
		}
		if seen[h] {
			continue
		}
		seen[h] = true

		commit, err := r.commitObject(h)
		if err != nil {
			return false, err
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return false, nil
}

// Tree building. Trees are kept as flat path -> blob maps and rebuilt
// bottom-up, so layering a change set on a base tree never has to read blob
// content.

type treeFile struct {
	hash plumbing.Hash
	mode filemode.FileMode
}

type dirEntry struct {
	name   string
	hash   plumbing.Hash
	mode   filemode.FileMode
	isTree bool
}

// emptyTreeHash is the id of the tree with no entries.
var emptyTreeHash = mustHash("4b825dc642cb6eb9a060e54bf8d69288fbee4904")

func mustHash(s string) plumbing.Hash {
	h, ok := plumbing.FromHex(s)
	if !ok {
		panic("invalid hash: " + s)
	}
	return h
}

// collectTreeFiles recursively collects file paths and their blob hashes.
func (r *Repo) collectTreeFiles(treeHash plumbing.Hash, files map[string]treeFile) error {
	tree, err := r.treeObject(treeHash)
	if err != nil {
		return fmt.Errorf("failed to get tree %s: %w", treeHash, err)
	}
	return r.collectBlobHashes("", tree, files)
}

func (r *Repo) collectBlobHashes(dirPath string, tree *object.Tree, files map[string]treeFile) error {
	for _, entry := range tree.Entries {
		fullPath := entry.Name
		if dirPath != "" {
			fullPath = path.Join(dirPath, entry.Name)
		}

		if entry.Mode == filemode.Dir {
			subTree, err := r.treeObject(entry.Hash)
			if err != nil {
				return fmt.Errorf("failed to get subtree %s: %w", entry.Name, err)
			}
			if err := r.collectBlobHashes(fullPath, subTree, files); err != nil {
				return err
			}
		} else if entry.Mode.IsFile() {
			files[fullPath] = treeFile{hash: entry.Hash, mode: entry.Mode}
		}
	}
	return nil
}

// buildTreeFromFiles stores the tree objects for a flat file map and
// returns the root tree hash.
func (r *Repo) buildTreeFromFiles(files map[string]treeFile) (plumbing.Hash, error) {
	dirs := make(map[string][]dirEntry)
	for filePath, f := range files {
		dir := path.Dir(filePath)
		if dir == "." {
			dir = ""
		}
		dirs[dir] = append(dirs[dir], dirEntry{
			name: path.Base(filePath),
			hash: f.hash,
			mode: f.mode,
		})
	}
	return r.buildTree("", dirs)
}

func (r *Repo) buildTree(dirPath string, dirs map[string][]dirEntry) (plumbing.Hash, error) {
	entries := append([]dirEntry(nil), dirs[dirPath]...)

	prefix := dirPath
	if prefix != "" {
		prefix += "/"
	}

	subdirs := make(map[string]bool)
	for dir := range dirs {
		if dir != dirPath && strings.HasPrefix(dir, prefix) {
			remainder := strings.TrimPrefix(dir, prefix)
			subdirs[strings.Split(remainder, "/")[0]] = true
		}
	}

	for subdir := range subdirs {
		subtreeHash, err := r.buildTree(prefix+subdir, dirs)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, dirEntry{
			name:   subdir,
			hash:   subtreeHash,
			mode:   filemode.Dir,
			isTree: true,
		})
	}

	// Git orders directories as if their name ended in a slash.
	sortKey := func(e dirEntry) string {
		if e.isTree {
			return e.name + "/"
		}
		return e.name
	}
	sort.Slice(entries, func(i, j int) bool {
		return sortKey(entries[i]) < sortKey(entries[j])
	})

	tree := &object.Tree{}
	for _, e := range entries {
		tree.Entries = append(tree.Entries, object.TreeEntry{
			Name: e.name,
			Mode: e.mode,
			Hash: e.hash,
		})
	}

	treeObj := r.store.NewEncodedObject()
	treeObj.SetType(plumbing.TreeObject)
	if err := tree.Encode(treeObj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to encode tree: %w", err)
	}
	treeHash, err := r.store.SetEncodedObject(treeObj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store tree: %w", err)
	}
	return treeHash, nil
}
