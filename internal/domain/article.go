package domain

type Article struct {
	ContentMeta
	Title string `json:"title"`
	Body  string `json:"body"`
	Tags  string `json:"tags"`
}

func (a *Article) Class() string { return ClassArticle }

type ArticleRevision struct {
	RevisionMeta
	Title string `json:"title"`
	Body  string `json:"body"`
	Tags  string `json:"tags"`
}

func NewArticleRevision(a *Article) *ArticleRevision {
	return &ArticleRevision{
		RevisionMeta: revisionMetaFrom(a.ContentMeta),
		Title:        a.Title,
		Body:         a.Body,
		Tags:         a.Tags,
	}
}
