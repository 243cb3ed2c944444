package domain

// ContentType describes a logical content kind. It is itself content: its
// defining row is anchored by a node whose first child points back at it.
type ContentType struct {
	ContentMeta
	Name           string `gorm:"uniqueIndex" json:"name"`
	ContentClass   string `json:"content_class"`
	EditableFields string `json:"editable_fields"` // JSON field -> filter policy
	ViewableFields string `json:"viewable_fields"` // JSON field -> view policy
	EditURL        string `json:"edit_url"`
	ViewURL        string `json:"view_url"`
}

func (t *ContentType) Class() string { return ClassContentType }

type ContentTypeRevision struct {
	RevisionMeta
	Name           string `json:"name"`
	ContentClass   string `json:"content_class"`
	EditableFields string `json:"editable_fields"`
	ViewableFields string `json:"viewable_fields"`
	EditURL        string `json:"edit_url"`
	ViewURL        string `json:"view_url"`
}

func NewContentTypeRevision(t *ContentType) *ContentTypeRevision {
	return &ContentTypeRevision{
		RevisionMeta:   revisionMetaFrom(t.ContentMeta),
		Name:           t.Name,
		ContentClass:   t.ContentClass,
		EditableFields: t.EditableFields,
		ViewableFields: t.ViewableFields,
		EditURL:        t.EditURL,
		ViewURL:        t.ViewURL,
	}
}
