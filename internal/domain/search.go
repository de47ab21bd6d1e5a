package domain

// DocType classifies an indexed page.
type DocType string

const (
	// TypeDoc is a documentation page.
	TypeDoc DocType = "doc"
	// TypeAPI is an API reference page.
	TypeAPI DocType = "api"
	// TypeExample is an example page.
	TypeExample DocType = "example"
	// TypeBlog is a blog post.
	TypeBlog DocType = "blog"
)

// Document is one indexed, searchable record representing a page on the site.
// Documents are immutable and loaded once per process.
type Document struct {
	Title    string   `yaml:"title"`
	URL      string   `yaml:"url"`
	Excerpt  string   `yaml:"excerpt"`
	Type     DocType  `yaml:"type"`
	Keywords []string `yaml:"keywords"`
}

// Result is a scored match produced fresh per query, never stored.
type Result struct {
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Excerpt    string   `json:"excerpt"`
	Type       DocType  `json:"type"`
	Score      int      `json:"score"`
	Highlights []string `json:"highlights"`
}
