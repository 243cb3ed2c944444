package content

import (
	"net/http"
	"strconv"

	apiError "ledger-cms/internal/errors"
	"ledger-cms/internal/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// Type names the bootstrap provisions; the edit routes address these.
const (
	TypeUser        = "user"
	TypeArticle     = "article"
	TypeSite        = "site"
	TypeContentType = "content-type"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// nodeRefForm carries the node reference of an edit submission. The ids
// arrive as strings and are coerced before use; a malformed value is a
// rejected request, never a crash.
type nodeRefForm struct {
	NodeID      string `json:"node_id"`
	NodeVersion string `json:"node_version"`
}

func (f nodeRefForm) ref() (*NodeRef, error) {
	if f.NodeID == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(f.NodeID, 10, 64)
	if err != nil {
		return nil, apiError.InvalidReference("node_id must be an integer", err)
	}
	version, err := strconv.ParseUint(f.NodeVersion, 10, 64)
	if err != nil {
		return nil, apiError.InvalidReference("node_version must be an integer", err)
	}
	return &NodeRef{ID: id, Version: version}, nil
}

type ArticleForm struct {
	nodeRefForm
	Title string `json:"title" binding:"required,max=200"`
	Body  string `json:"body" binding:"required"`
	Tags  string `json:"tags" binding:"max=500"`
}

type UserForm struct {
	nodeRefForm
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"omitempty,min=8,max=72"`
	Roles    string `json:"roles"`
}

type SiteForm struct {
	nodeRefForm
	SiteName        string `json:"site_name" binding:"required,max=100"`
	EnvironmentName string `json:"environment_name" binding:"required,max=100"`
	LocalBuildDir   string `json:"local_build_dir"`
	StaticFilesDir  string `json:"static_files_dir"`
	HostingType     string `json:"hosting_type"`
	IndexContent    string `json:"index_content"`
	MenuContent     string `json:"menu_content"`
	GroupsContent   string `json:"groups_content"`
	BuilderURL      string `json:"builder_url" binding:"omitempty,url"`
}

type ContentTypeForm struct {
	nodeRefForm
	Name           string `json:"name" binding:"required,max=100"`
	ContentClass   string `json:"content_class" binding:"required"`
	EditableFields string `json:"editable_fields" binding:"required,json"`
	ViewableFields string `json:"viewable_fields" binding:"required,json"`
	EditURL        string `json:"edit_url"`
	ViewURL        string `json:"view_url"`
}

func (h *Handler) SaveArticle(c *gin.Context) {
	var form ArticleForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	fields := map[string]string{
		"title": form.Title,
		"body":  form.Body,
		"tags":  form.Tags,
	}
	h.save(c, TypeArticle, fields, form.nodeRefForm)
}

func (h *Handler) SaveUser(c *gin.Context) {
	var form UserForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	fields := map[string]string{
		"username": form.Username,
		"email":    form.Email,
		"roles":    form.Roles,
	}
	if form.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(form.Password), bcrypt.DefaultCost)
		if err != nil {
			c.Error(err)
			return
		}
		fields["password_hash"] = string(hashed)
	}
	h.save(c, TypeUser, fields, form.nodeRefForm)
}

func (h *Handler) SaveSite(c *gin.Context) {
	var form SiteForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	fields := map[string]string{
		"site_name":        form.SiteName,
		"environment_name": form.EnvironmentName,
		"local_build_dir":  form.LocalBuildDir,
		"static_files_dir": form.StaticFilesDir,
		"hosting_type":     form.HostingType,
		"index_content":    form.IndexContent,
		"menu_content":     form.MenuContent,
		"groups_content":   form.GroupsContent,
		"builder_url":      form.BuilderURL,
	}
	h.save(c, TypeSite, fields, form.nodeRefForm)
}

func (h *Handler) SaveContentType(c *gin.Context) {
	var form ContentTypeForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	fields := map[string]string{
		"name":            form.Name,
		"content_class":   form.ContentClass,
		"editable_fields": form.EditableFields,
		"viewable_fields": form.ViewableFields,
		"edit_url":        form.EditURL,
		"view_url":        form.ViewURL,
	}
	h.save(c, TypeContentType, fields, form.nodeRefForm)
}

func (h *Handler) save(c *gin.Context, typeName string, fields map[string]string, refForm nodeRefForm) {
	ref, err := refForm.ref()
	if err != nil {
		c.Error(err)
		return
	}

	result, err := h.service.Save(c.Request.Context(), typeName, SaveInput{
		Fields:  fields,
		NodeRef: ref,
		Actor:   actorFrom(c),
	})
	if err != nil {
		c.Error(err)
		return
	}
	if result.Rejected != nil {
		c.Error(apiError.New(http.StatusConflict, apiError.CodeLockedByOther, "Locked by another user", nil).
			WithDetails(result.Rejected))
		return
	}

	status := http.StatusOK
	if ref == nil {
		status = http.StatusCreated
	}
	c.JSON(status, result.Resolved)
}

func (h *Handler) BeginEdit(c *gin.Context) {
	nodeID, err := nodeIDParam(c)
	if err != nil {
		c.Error(err)
		return
	}

	// confirm the node belongs to the addressed type before taking locks
	current, err := h.service.Load(c.Request.Context(), nodeID)
	if err != nil {
		c.Error(err)
		return
	}
	// a type-definition node is edited as a content type, not as an
	// instance of the class its definition describes
	expected := current.Type.Name
	if current.IsTypeDefinition {
		expected = TypeContentType
	}
	if kind := c.Param("kind"); kind != "" && kind != expected {
		c.Error(apiError.NotFound("No such content under this type", nil))
		return
	}

	result, err := h.service.BeginEdit(c.Request.Context(), nodeID, actorFrom(c))
	if err != nil {
		c.Error(err)
		return
	}
	if result.Rejected != nil {
		c.Error(apiError.New(http.StatusConflict, apiError.CodeLockedByOther, "Locked by another user", nil).
			WithDetails(result.Rejected))
		return
	}
	c.JSON(http.StatusOK, result.Resolved)
}

func (h *Handler) View(c *gin.Context) {
	nodeID, err := nodeIDParam(c)
	if err != nil {
		c.Error(err)
		return
	}

	raw, err := h.service.LoadView(c.Request.Context(), nodeID)
	if err != nil {
		c.Error(err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func (h *Handler) ContentControl(c *gin.Context) {
	page, pageSize := utils.GetPaginationParams(c)
	entries, meta, err := h.service.ListContent(c.Request.Context(), page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries, "meta": meta})
}

func nodeIDParam(c *gin.Context) (uint64, error) {
	raw := c.Param("node_id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apiError.InvalidReference("node_id must be an integer", err)
	}
	return id, nil
}

func actorFrom(c *gin.Context) Actor {
	actor := Actor{}
	if id, ok := c.Get("user_id"); ok {
		actor.ID, _ = id.(uint64)
	}
	if name, ok := c.Get("username"); ok {
		actor.Username, _ = name.(string)
	}
	return actor
}
