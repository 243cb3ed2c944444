// Package publish notifies an external site builder that a site's content
// changed. The builder does the crawling and rendering; this side only
// fires the build request.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ledger-cms/internal/domain"
	"ledger-cms/internal/logger"
)

type BuildClient struct {
	httpClient *http.Client
}

func NewBuildClient() *BuildClient {
	return &BuildClient{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type BuildRequest struct {
	SiteName        string `json:"site_name"`
	EnvironmentName string `json:"environment_name"`
	LocalBuildDir   string `json:"local_build_dir"`
	StaticFilesDir  string `json:"static_files_dir"`
	HostingType     string `json:"hosting_type"`
}

// RequestBuild POSTs the site's build parameters to its configured builder
// endpoint.
func (c *BuildClient) RequestBuild(ctx context.Context, site *domain.Site) error {
	if site.BuilderURL == "" {
		return nil
	}

	url := fmt.Sprintf("%s/internal/sites/%d/build", site.BuilderURL, site.ID)

	payload := BuildRequest{
		SiteName:        site.SiteName,
		EnvironmentName: site.EnvironmentName,
		LocalBuildDir:   site.LocalBuildDir,
		StaticFilesDir:  site.StaticFilesDir,
		HostingType:     site.HostingType,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf(
			"builder error: status=%d body=%s",
			resp.StatusCode,
			string(b),
		)
	}

	return nil
}

// NotifyBuild fires the build request without blocking the save that
// triggered it. Failures are logged, never surfaced to the editor.
func (c *BuildClient) NotifyBuild(site *domain.Site) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := c.RequestBuild(ctx, site); err != nil {
			logger.Log.Warn().Err(err).
				Str("site", site.SiteName).
				Msg("site build notification failed")
		}
	}()
}
