// Package versioncheck looks for a newer imgforge release on GitHub. The
// result is cached in the state database so most invocations never touch
// the network.
package versioncheck

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/imgforge/imgforge/internal/state"
	"github.com/imgforge/imgforge/internal/version"
	"github.com/imgforge/imgforge/internal/versions"
)

const (
	// GitHubOwner is the GitHub repository owner.
	GitHubOwner = "imgforge"
	// GitHubRepo is the GitHub repository name.
	GitHubRepo = "imgforge"

	// CacheTTL is how long a fetched release survives before re-checking.
	CacheTTL = 24 * time.Hour
	// RequestTimeout bounds the GitHub API request.
	RequestTimeout = 5 * time.Second

	cacheKeyStable = state.KVStoreKey("versioncheck:stable")
)

// InstallMethod represents how imgforge was installed.
type InstallMethod int

const (
	InstallMethodUnknown InstallMethod = iota
	InstallMethodHomebrew
	InstallMethodDownload
)

// githubRelease is the subset of the GitHub release API response we read.
type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// cacheData is what gets persisted between checks.
type cacheData struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// Result contains the version check result.
type Result struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateURL       string
	UpdateAvailable bool
	InstallMethod   InstallMethod
}

// Check compares the running version against the latest GitHub release.
// Returns nil for local builds, for unparseable versions, and when the
// check fails; an update check must never break a build.
func Check(ctx context.Context) *Result {
	current := version.Get()

	if current == "local" {
		return nil
	}
	if !versions.IsValid(strings.TrimPrefix(current, "v")) {
		return nil
	}

	cached, cacheAge, err := loadCache(ctx)
	if err == nil && cacheAge < CacheTTL {
		return buildResult(current, cached.Version, cached.URL)
	}

	latest, releaseURL, err := fetchLatestRelease(ctx)
	if err != nil {
		if cached != nil {
			return buildResult(current, cached.Version, cached.URL)
		}
		return nil
	}

	saveCache(ctx, &cacheData{Version: latest, URL: releaseURL})

	return buildResult(current, latest, releaseURL)
}

func buildResult(current, latest, releaseURL string) *Result {
	currentNorm := strings.TrimPrefix(current, "v")
	latestNorm := strings.TrimPrefix(latest, "v")

	updateAvailable := false
	if versions.IsValid(latestNorm) && versions.IsValid(currentNorm) {
		updateAvailable = versions.Compare(latestNorm, currentNorm) > 0
	}

	return &Result{
		CurrentVersion:  current,
		LatestVersion:   latest,
		UpdateURL:       releaseURL,
		UpdateAvailable: updateAvailable,
		InstallMethod:   detectInstallMethod(),
	}
}

func fetchLatestRelease(ctx context.Context) (string, string, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/latest", GitHubOwner, GitHubRepo)

	reqCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("github API returned status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", "", fmt.Errorf("decode release response: %w", err)
	}

	return release.TagName, release.HTMLURL, nil
}

func loadCache(ctx context.Context) (*cacheData, time.Duration, error) {
	kv, err := state.DefaultKVStore(ctx)
	if err != nil {
		return nil, 0, err
	}

	entry, found, err := kv.Get(ctx, cacheKeyStable)
	if err != nil {
		return nil, 0, err
	}
	if !found {
		return nil, 0, fmt.Errorf("cache not found")
	}

	var data cacheData
	if err := json.Unmarshal([]byte(entry.Value), &data); err != nil {
		return nil, 0, err
	}

	return &data, time.Since(entry.LastUsed), nil
}

func saveCache(ctx context.Context, data *cacheData) {
	kv, err := state.DefaultKVStore(ctx)
	if err != nil {
		return
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	_ = kv.Upsert(ctx, cacheKeyStable, string(jsonData))
}

// detectInstallMethod guesses the install channel from the executable path
// so the update hint names the right command.
func detectInstallMethod() InstallMethod {
	execPath, err := os.Executable()
	if err != nil {
		return InstallMethodUnknown
	}

	realPath, err := filepath.EvalSymlinks(execPath)
	if err != nil {
		realPath = execPath
	}

	if strings.Contains(realPath, "/Cellar/") ||
		strings.Contains(realPath, "/homebrew/") ||
		strings.Contains(realPath, "/linuxbrew/") {
		return InstallMethodHomebrew
	}

	return InstallMethodDownload
}

// PrintUpdateBanner prints an update notification if an update is available.
// Call it after command output so it never interrupts the main flow.
func PrintUpdateBanner(result *Result) {
	if result == nil || !result.UpdateAvailable {
		return
	}

	fmt.Printf("\n")
	fmt.Printf("  A new version of imgforge is available: %s -> %s\n", result.CurrentVersion, result.LatestVersion)

	switch result.InstallMethod {
	case InstallMethodHomebrew:
		fmt.Printf("  Run: brew upgrade imgforge\n")
	case InstallMethodDownload, InstallMethodUnknown:
		fmt.Printf("  Download: %s\n", result.UpdateURL)
	}

	fmt.Printf("\n")
}
