package domain

// Site describes a publishing endpoint for built content.
type Site struct {
	ContentMeta
	SiteName        string `json:"site_name"`
	EnvironmentName string `json:"environment_name"`
	LocalBuildDir   string `json:"local_build_dir"`
	StaticFilesDir  string `json:"static_files_dir"`
	HostingType     string `json:"hosting_type"`
	IndexContent    string `json:"index_content"` // node id of the front-page index
	MenuContent     string `json:"menu_content"`
	GroupsContent   string `json:"groups_content"`
	BuilderURL      string `json:"builder_url"`
}

func (s *Site) Class() string { return ClassSite }

type SiteRevision struct {
	RevisionMeta
	SiteName        string `json:"site_name"`
	EnvironmentName string `json:"environment_name"`
	LocalBuildDir   string `json:"local_build_dir"`
	StaticFilesDir  string `json:"static_files_dir"`
	HostingType     string `json:"hosting_type"`
	IndexContent    string `json:"index_content"`
	MenuContent     string `json:"menu_content"`
	GroupsContent   string `json:"groups_content"`
	BuilderURL      string `json:"builder_url"`
}

func NewSiteRevision(s *Site) *SiteRevision {
	return &SiteRevision{
		RevisionMeta:    revisionMetaFrom(s.ContentMeta),
		SiteName:        s.SiteName,
		EnvironmentName: s.EnvironmentName,
		LocalBuildDir:   s.LocalBuildDir,
		StaticFilesDir:  s.StaticFilesDir,
		HostingType:     s.HostingType,
		IndexContent:    s.IndexContent,
		MenuContent:     s.MenuContent,
		GroupsContent:   s.GroupsContent,
		BuilderURL:      s.BuilderURL,
	}
}
