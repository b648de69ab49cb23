package acquire

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/packscan/pkg/errors"
	"github.com/matzehuels/packscan/pkg/integrations"
	"github.com/matzehuels/packscan/pkg/integrations/github"
)

// Fetcher writes the contents of a repository into dest, which does not
// exist yet when Fetch is called.
type Fetcher interface {
	Fetch(ctx context.Context, d github.Descriptor, dest string) error
}

// Method selects a [Fetcher] implementation.
type Method string

const (
	MethodTarball Method = "tarball"
	MethodGit     Method = "git"
)

// ParseMethod converts s to a Method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodTarball, MethodGit:
		return m, nil
	case "":
		return MethodTarball, nil
	default:
		return "", errors.New(errors.ErrCodeInvalidInput, "unknown fetch method %q (want tarball or git)", s)
	}
}

// maxFileSize caps a single extracted file; larger entries are skipped.
const maxFileSize = 64 << 20

// TarballFetcher downloads the gzipped tarball at the descriptor's archive
// locator and extracts it, dropping the archive's top-level directory.
type TarballFetcher struct {
	client *integrations.Client
}

// NewTarballFetcher creates a TarballFetcher. Authorization headers, if any,
// belong on client.
func NewTarballFetcher(client *integrations.Client) *TarballFetcher {
	return &TarballFetcher{client: client}
}

// Fetch implements [Fetcher].
func (f *TarballFetcher) Fetch(ctx context.Context, d github.Descriptor, dest string) error {
	if d.ArchiveURL == "" {
		return errors.New(errors.ErrCodeInvalidInput, "%s has no archive locator", d)
	}
	return f.client.Download(ctx, d.ArchiveURL, func(r io.Reader) error {
		// A retried download starts from an empty destination.
		if err := os.RemoveAll(dest); err != nil {
			return err
		}
		return Extract(r, dest)
	})
}

// Extract unpacks a gzipped tar stream into dest, stripping the first path
// component of every entry. Only directories and regular files are
// written; links, devices and entries escaping dest are skipped.
func Extract(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err == tar.ErrInsecurePath {
			continue
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}

		rel, ok := stripTopLevel(hdr.Name)
		if !ok {
			continue
		}
		target := filepath.Join(dest, rel)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if hdr.Size > maxFileSize {
				continue
			}
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		}
	}
}

// stripTopLevel drops the leading "owner-repo-sha/" component and reports
// whether the remainder is a safe relative path.
func stripTopLevel(name string) (string, bool) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	_, rest, found := strings.Cut(name, "/")
	if !found || rest == "" {
		return "", false
	}
	rel := filepath.FromSlash(strings.TrimSuffix(rest, "/"))
	if !filepath.IsLocal(rel) {
		return "", false
	}
	return rel, true
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// GitFetcher shallow-clones the descriptor's clone URL with the git CLI.
type GitFetcher struct {
	Binary string // Defaults to "git"
}

// Fetch implements [Fetcher].
func (f GitFetcher) Fetch(ctx context.Context, d github.Descriptor, dest string) error {
	url := integrations.NormalizeRepoURL(d.CloneURL)
	if url == "" {
		return errors.New(errors.ErrCodeInvalidInput, "%s has no clone url", d)
	}
	if err := errors.ValidateURL(url); err != nil {
		return err
	}
	bin := f.Binary
	if bin == "" {
		bin = "git"
	}

	args := []string{"clone", "--depth", "1", "--quiet"}
	if d.DefaultBranch != "" {
		args = append(args, "--branch", d.DefaultBranch)
	}
	args = append(args, "--", url, dest)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone %s: %w: %s", d.FullName, err, strings.TrimSpace(string(out)))
	}
	return nil
}
