package github

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gh "github.com/google/go-github/v61/github"
)

// Descriptor is the search-result metadata for one repository, captured
// before any content is fetched.
type Descriptor struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Owner         string          `json:"owner"`
	FullName      string          `json:"full_name"`
	DefaultBranch string          `json:"default_branch"`
	CloneURL      string          `json:"clone_url"`
	ArchiveURL    string          `json:"archive_url"`
	HTMLURL       string          `json:"html_url"`
	Language      string          `json:"language"`
	Forks         int             `json:"forks"`
	Stars         int             `json:"stars"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Raw           json.RawMessage `json:"raw,omitempty"` // Full API payload, kept for audit and replay
}

// DirName returns the deterministic local directory name "{name}_{id}".
func (d Descriptor) DirName() string {
	return fmt.Sprintf("%s_%d", d.Name, d.ID)
}

// String returns "owner/name#id".
func (d Descriptor) String() string {
	return fmt.Sprintf("%s/%s#%d", d.Owner, d.Name, d.ID)
}

// descriptorFrom converts an API repository. apiBase is used to build the
// tarball locator when the payload carries no archive_url template.
func descriptorFrom(r *gh.Repository, apiBase string) Descriptor {
	d := Descriptor{
		ID:            r.GetID(),
		Name:          r.GetName(),
		Owner:         r.GetOwner().GetLogin(),
		FullName:      r.GetFullName(),
		DefaultBranch: r.GetDefaultBranch(),
		CloneURL:      r.GetCloneURL(),
		HTMLURL:       r.GetHTMLURL(),
		Language:      r.GetLanguage(),
		Forks:         r.GetForksCount(),
		Stars:         r.GetStargazersCount(),
		CreatedAt:     r.GetCreatedAt().Time,
		UpdatedAt:     r.GetUpdatedAt().Time,
	}
	d.ArchiveURL = tarballURL(r.GetArchiveURL(), apiBase, d.Owner, d.Name, d.DefaultBranch)
	if raw, err := json.Marshal(r); err == nil {
		d.Raw = raw
	}
	return d
}

// tarballURL expands the archive_url template
// ("https://api.github.com/repos/o/r/{archive_format}{/ref}") for a tarball.
func tarballURL(template, apiBase, owner, name, ref string) string {
	if template == "" {
		template = strings.TrimSuffix(apiBase, "/") + "/repos/" + owner + "/" + name + "/{archive_format}{/ref}"
	}
	suffix := ""
	if ref != "" {
		suffix = "/" + ref
	}
	return strings.NewReplacer("{archive_format}", "tarball", "{/ref}", suffix).Replace(template)
}
