package fakehub

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
)

const emptyRepositoryMessage = "Git Repository is empty."

func (s *Server) apiURL(r *http.Request, repo *Repo, parts ...string) string {
	return s.htmlBase(r) + "/repos/" + repo.FullName() + "/" + strings.Join(parts, "/")
}

func (s *Server) commitJSON(r *http.Request, repo *Repo, hash plumbing.Hash, commit *object.Commit) commitBody {
	base := s.htmlBase(r)
	out := commitBody{
		SHA:     hash.String(),
		URL:     s.apiURL(r, repo, "git", "commits", hash.String()),
		HTMLURL: fmt.Sprintf("%s/%s/commit/%s", base, repo.FullName(), hash),
		Message: commit.Message,
		Tree:    shaBody{SHA: commit.TreeHash.String()},
		Parents: []shaBody{},
		Author: signatureBody{
			Name:  commit.Author.Name,
			Email: commit.Author.Email,
			Date:  commit.Author.When.UTC().Format(time.RFC3339),
		},
		Committer: signatureBody{
			Name:  commit.Committer.Name,
			Email: commit.Committer.Email,
			Date:  commit.Committer.When.UTC().Format(time.RFC3339),
		},
	}
	for _, p := range commit.ParentHashes {
		out.Parents = append(out.Parents, shaBody{
			SHA:     p.String(),
			HTMLURL: fmt.Sprintf("%s/%s/commit/%s", base, repo.FullName(), p),
		})
	}
	return out
}

func (s *Server) getRepository(w http.ResponseWriter, r *http.Request, repo *Repo) {
	writeJSON(w, http.StatusOK, repositoryBody{
		Name:          repo.Name,
		FullName:      repo.FullName(),
		DefaultBranch: repo.DefaultBranch,
		HTMLURL:       s.htmlBase(r) + "/" + repo.FullName(),
		Owner:         ownerBody{Login: repo.Owner},
	})
}

func branchFromRef(ref string) (string, bool) {
	ref = strings.TrimPrefix(ref, "refs/")
	return strings.CutPrefix(ref, "heads/")
}

func (s *Server) refJSON(r *http.Request, repo *Repo, branch string, hash plumbing.Hash) refBody {
	return refBody{
		Ref: "refs/heads/" + branch,
		URL: s.apiURL(r, repo, "git", "refs", "heads", branch),
		Object: objectBody{
			SHA:  hash.String(),
			Type: "commit",
			URL:  s.apiURL(r, repo, "git", "commits", hash.String()),
		},
	}
}

func (s *Server) getRef(w http.ResponseWriter, r *http.Request, repo *Repo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if repo.empty() {
		writeError(w, http.StatusConflict, emptyRepositoryMessage)
		return
	}

	branch, ok := branchFromRef(r.PathValue("ref"))
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	hash, ok := repo.refs[branch]
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, s.refJSON(r, repo, branch, hash))
}

func (s *Server) createRef(w http.ResponseWriter, r *http.Request, repo *Repo) {
	var body struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if repo.empty() {
		writeError(w, http.StatusConflict, emptyRepositoryMessage)
		return
	}

	if !strings.HasPrefix(body.Ref, "refs/") || strings.Count(body.Ref, "/") < 2 {
		writeError(w, http.StatusUnprocessableEntity, "Reference name must start with 'refs/' and have at least two slashes.")
		return
	}
	branch, ok := branchFromRef(body.Ref)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Only branch references are supported")
		return
	}

	hash, ok := plumbing.FromHex(body.SHA)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Object does not exist")
		return
	}
	if _, err := repo.commitObject(hash); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Object does not exist")
		return
	}
	if _, exists := repo.refs[branch]; exists {
		writeError(w, http.StatusUnprocessableEntity, "Reference already exists")
		return
	}

	repo.refs[branch] = hash
	writeJSON(w, http.StatusCreated, s.refJSON(r, repo, branch, hash))
}

func (s *Server) updateRef(w http.ResponseWriter, r *http.Request, repo *Repo) {
	var body struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if repo.empty() {
		writeError(w, http.StatusConflict, emptyRepositoryMessage)
		return
	}

	branch, ok := branchFromRef(r.PathValue("ref"))
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Reference does not exist")
		return
	}
	current, exists := repo.refs[branch]
	if !exists {
		writeError(w, http.StatusUnprocessableEntity, "Reference does not exist")
		return
	}

	hash, ok := plumbing.FromHex(body.SHA)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Object does not exist")
		return
	}
	if _, err := repo.commitObject(hash); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Object does not exist")
		return
	}

	if !body.Force {
		fastForward, err := repo.isAncestor(current, hash)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !fastForward {
			writeError(w, http.StatusUnprocessableEntity, "Update is not a fast forward")
			return
		}
	}

	repo.refs[branch] = hash
	writeJSON(w, http.StatusOK, s.refJSON(r, repo, branch, hash))
}

func decodeContent(content, encoding string) ([]byte, error) {
	switch encoding {
	case "", "utf-8":
		return []byte(content), nil
	case "base64":
		cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(content)
		return base64.StdEncoding.DecodeString(cleaned)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

func (s *Server) createBlob(w http.ResponseWriter, r *http.Request, repo *Repo) {
	var body struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	content, err := decodeContent(body.Content, body.Encoding)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	inFlight := s.blobsInFlight.Add(1)
	defer s.blobsInFlight.Add(-1)
	for {
		peak := s.maxBlobsInFlight.Load()
		if inFlight <= peak || s.maxBlobsInFlight.CompareAndSwap(peak, inFlight) {
			break
		}
	}

	if s.BlobDelay > 0 {
		select {
		case <-time.After(s.BlobDelay):
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if repo.empty() {
		writeError(w, http.StatusConflict, emptyRepositoryMessage)
		return
	}

	hash, err := repo.storeBlob(content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, blobBody{
		SHA: hash.String(),
		URL: s.apiURL(r, repo, "git", "blobs", hash.String()),
	})
}

func (s *Server) getBlob(w http.ResponseWriter, r *http.Request, repo *Repo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, ok := plumbing.FromHex(r.PathValue("sha"))
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	content, err := repo.blobContent(hash)
	if err != nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, blobBody{
		SHA:      hash.String(),
		URL:      s.apiURL(r, repo, "git", "blobs", hash.String()),
		Content:  base64.StdEncoding.EncodeToString(content),
		Encoding: "base64",
		Size:     len(content),
	})
}

func parseFileMode(mode string) (filemode.FileMode, bool) {
	switch mode {
	case "100644":
		return filemode.Regular, true
	case "100755":
		return filemode.Executable, true
	case "120000":
		return filemode.Symlink, true
	}
	return filemode.Empty, false
}

func (s *Server) createTree(w http.ResponseWriter, r *http.Request, repo *Repo) {
	var body struct {
		BaseTree string `json:"base_tree"`
		Tree     []struct {
			Path    string  `json:"path"`
			Mode    string  `json:"mode"`
			Type    string  `json:"type"`
			SHA     *string `json:"sha"`
			Content *string `json:"content"`
		} `json:"tree"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if repo.empty() {
		writeError(w, http.StatusConflict, emptyRepositoryMessage)
		return
	}

	files := make(map[string]treeFile)
	if body.BaseTree != "" {
		base, ok := plumbing.FromHex(body.BaseTree)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "Invalid tree info")
			return
		}
		if err := repo.collectTreeFiles(base, files); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "Invalid tree info")
			return
		}
	}

	for _, entry := range body.Tree {
		if entry.Path == "" || strings.HasPrefix(entry.Path, "/") || strings.HasSuffix(entry.Path, "/") ||
			path.Clean(entry.Path) != entry.Path || strings.HasPrefix(entry.Path, "../") || entry.Path == ".." {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("tree.path contains a malformed path component: %q", entry.Path))
			return
		}
		if entry.Type != "" && entry.Type != "blob" {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unsupported tree entry type %q", entry.Type))
			return
		}
		mode, ok := parseFileMode(entry.Mode)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid tree.mode %q", entry.Mode))
			return
		}

		switch {
		case entry.Content != nil:
			hash, err := repo.storeBlob([]byte(*entry.Content))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			files[entry.Path] = treeFile{hash: hash, mode: mode}
		case entry.SHA != nil:
			hash, ok := plumbing.FromHex(*entry.SHA)
			if !ok || !repo.hasBlob(hash) {
				writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("tree.sha %s is not a valid blob", *entry.SHA))
				return
			}
			files[entry.Path] = treeFile{hash: hash, mode: mode}
		default:
			delete(files, entry.Path)
		}
	}

	treeHash, err := repo.buildTreeFromFiles(files)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeTree(w, r, repo, http.StatusCreated, treeHash, false)
}

func (s *Server) writeTree(w http.ResponseWriter, r *http.Request, repo *Repo, status int, treeHash plumbing.Hash, recursive bool) {
	out := treeBody{
		SHA:  treeHash.String(),
		URL:  s.apiURL(r, repo, "git", "trees", treeHash.String()),
		Tree: []treeEntryBody{},
	}

	if recursive {
		files := make(map[string]treeFile)
		if err := repo.collectTreeFiles(treeHash, files); err != nil {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		for p, f := range files {
			out.Tree = append(out.Tree, treeEntryBody{
				Path: p,
				Mode: fmt.Sprintf("%06o", uint32(f.mode)),
				Type: "blob",
				SHA:  f.hash.String(),
			})
		}
		sort.Slice(out.Tree, func(i, j int) bool {
			return out.Tree[i].Path < out.Tree[j].Path
		})
	} else {
		tree, err := repo.treeObject(treeHash)
		if err != nil {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		for _, e := range tree.Entries {
			typ := "blob"
			if e.Mode == filemode.Dir {
				typ = "tree"
			}
			out.Tree = append(out.Tree, treeEntryBody{
				Path: e.Name,
				Mode: fmt.Sprintf("%06o", uint32(e.Mode)),
				Type: typ,
				SHA:  e.Hash.String(),
			})
		}
	}

	writeJSON(w, status, out)
}

func (s *Server) getTree(w http.ResponseWriter, r *http.Request, repo *Repo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, ok := plumbing.FromHex(r.PathValue("sha"))
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	recursive := r.URL.Query().Get("recursive") != ""
	s.writeTree(w, r, repo, http.StatusOK, hash, recursive)
}

func (s *Server) createCommit(w http.ResponseWriter, r *http.Request, repo *Repo) {
	var body struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if repo.empty() {
		writeError(w, http.StatusConflict, emptyRepositoryMessage)
		return
	}

	treeHash, ok := plumbing.FromHex(body.Tree)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Tree SHA does not exist")
		return
	}
	if _, err := repo.treeObject(treeHash); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Tree SHA does not exist")
		return
	}

	var parents []plumbing.Hash
	for _, p := range body.Parents {
		hash, ok := plumbing.FromHex(p)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "Parent SHA does not exist or is not a commit object")
			return
		}
		if _, err := repo.commitObject(hash); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "Parent SHA does not exist or is not a commit object")
			return
		}
		parents = append(parents, hash)
	}

	hash, err := repo.storeCommit(body.Message, treeHash, parents)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	commit, err := repo.commitObject(hash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s.commitJSON(r, repo, hash, commit))
}

func (s *Server) getCommit(w http.ResponseWriter, r *http.Request, repo *Repo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, ok := plumbing.FromHex(r.PathValue("sha"))
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	commit, err := repo.commitObject(hash)
	if err != nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, s.commitJSON(r, repo, hash, commit))
}

type contentRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
}

func (s *Server) putContents(w http.ResponseWriter, r *http.Request, repo *Repo) {
	var body contentRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	filePath := r.PathValue("path")
	content, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "content is not valid Base64")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	branch := body.Branch
	if branch == "" {
		branch = repo.DefaultBranch
	}

	files := make(map[string]treeFile)
	var parents []plumbing.Hash
	status := http.StatusCreated

	if !repo.empty() {
		tip, ok := repo.refs[branch]
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Branch %s not found", branch))
			return
		}
		parents = []plumbing.Hash{tip}
		commit, err := repo.commitObject(tip)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := repo.collectTreeFiles(commit.TreeHash, files); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if existing, ok := files[filePath]; ok {
			if body.SHA == "" {
				writeError(w, http.StatusUnprocessableEntity, "Invalid request.\n\n\"sha\" wasn't supplied.")
				return
			}
			if body.SHA != existing.hash.String() {
				writeError(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", filePath, body.SHA))
				return
			}
			status = http.StatusOK
		}
	}

	blobHash, err := repo.storeBlob(content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	files[filePath] = treeFile{hash: blobHash, mode: filemode.Regular}

	commitHash, commit, err := s.commitFiles(repo, body.Message, files, parents)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	repo.refs[branch] = commitHash

	writeJSON(w, status, contentResponseBody{
		Content: &contentBody{
			Name: path.Base(filePath),
			Path: filePath,
			SHA:  blobHash.String(),
			Size: len(content),
			Type: "file",
		},
		Commit: s.commitJSON(r, repo, commitHash, commit),
	})
}

func (s *Server) deleteContents(w http.ResponseWriter, r *http.Request, repo *Repo) {
	var body contentRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	filePath := r.PathValue("path")

	s.mu.Lock()
	defer s.mu.Unlock()

	if repo.empty() {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	branch := body.Branch
	if branch == "" {
		branch = repo.DefaultBranch
	}
	tip, ok := repo.refs[branch]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Branch %s not found", branch))
		return
	}
	commit, err := repo.commitObject(tip)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	files := make(map[string]treeFile)
	if err := repo.collectTreeFiles(commit.TreeHash, files); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	existing, ok := files[filePath]
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if body.SHA != existing.hash.String() {
		writeError(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", filePath, body.SHA))
		return
	}
	delete(files, filePath)

	commitHash, newCommit, err := s.commitFiles(repo, body.Message, files, []plumbing.Hash{tip})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	repo.refs[branch] = commitHash

	writeJSON(w, http.StatusOK, contentResponseBody{
		Commit: s.commitJSON(r, repo, commitHash, newCommit),
	})
}

func (s *Server) commitFiles(repo *Repo, message string, files map[string]treeFile, parents []plumbing.Hash) (plumbing.Hash, *object.Commit, error) {
	treeHash, err := repo.buildTreeFromFiles(files)
	if err != nil {
		return plumbing.ZeroHash, nil, err
	}
	commitHash, err := repo.storeCommit(message, treeHash, parents)
	if err != nil {
		return plumbing.ZeroHash, nil, err
	}
	commit, err := repo.commitObject(commitHash)
	if err != nil {
		return plumbing.ZeroHash, nil, err
	}
	return commitHash, commit, nil
}
