package fakehub

type errorBody struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url,omitempty"`
}

type ownerBody struct {
	Login string `json:"login"`
}

type repositoryBody struct {
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	DefaultBranch string    `json:"default_branch"`
	HTMLURL       string    `json:"html_url"`
	Private       bool      `json:"private"`
	Owner         ownerBody `json:"owner"`
}

type objectBody struct {
	SHA  string `json:"sha"`
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

type refBody struct {
	Ref    string     `json:"ref"`
	URL    string     `json:"url,omitempty"`
	Object objectBody `json:"object"`
}

type blobBody struct {
	SHA      string `json:"sha"`
	URL      string `json:"url,omitempty"`
	Content  string `json:"content,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Size     int    `json:"size,omitempty"`
}

type treeEntryBody struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type treeBody struct {
	SHA       string          `json:"sha"`
	URL       string          `json:"url,omitempty"`
	Tree      []treeEntryBody `json:"tree"`
	Truncated bool            `json:"truncated"`
}

type shaBody struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url,omitempty"`
}

type signatureBody struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Date  string `json:"date"`
}

type commitBody struct {
	SHA       string        `json:"sha"`
	URL       string        `json:"url,omitempty"`
	HTMLURL   string        `json:"html_url"`
	Message   string        `json:"message"`
	Tree      shaBody       `json:"tree"`
	Parents   []shaBody     `json:"parents"`
	Author    signatureBody `json:"author"`
	Committer signatureBody `json:"committer"`
}

type contentBody struct {
	Name string `json:"name"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
	Size int    `json:"size"`
	Type string `json:"type"`
}

type contentResponseBody struct {
	Content *contentBody `json:"content"`
	Commit  commitBody   `json:"commit"`
}
