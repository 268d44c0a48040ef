// Package upgrader polls the release feed and warns when a newer katana is published.
package upgrader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/NethermindEth/katana/service"
	"github.com/NethermindEth/katana/utils"
)

const (
	DefaultReleaseAPI = "https://api.github.com/repos/NethermindEth/katana/releases/latest"
	DefaultReleaseURL = "https://github.com/NethermindEth/katana/releases/latest"
	DefaultInterval   = 30 * time.Minute
)

var _ service.Service = (*Upgrader)(nil)

type Release struct {
	Version    *semver.Version `json:"tag_name"`
	Draft      bool            `json:"draft"`
	PreRelease bool            `json:"prerelease"`
}

type Upgrader struct {
	current  *semver.Version
	apiURL   string
	link     string
	interval time.Duration
	client   *http.Client
	log      utils.SimpleLogger
}

func New(current *semver.Version, apiURL, link string, interval time.Duration, log utils.SimpleLogger) *Upgrader {
	return &Upgrader{
		current:  current,
		apiURL:   apiURL,
		link:     link,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

func (u *Upgrader) WithClient(client *http.Client) *Upgrader {
	u.client = client
	return u
}

// Run checks for a release right away, then on every interval. Failures are only logged: a missing
// update check never stops the node.
func (u *Upgrader) Run(ctx context.Context) error {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		u.check(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (u *Upgrader) check(ctx context.Context) {
	latest, err := u.Latest(ctx)
	if err != nil {
		u.log.Debugw("Failed to fetch latest release", "err", err)
		return
	}
	if latest.Draft || latest.PreRelease || !NeedsUpdate(u.current, latest.Version) {
		u.log.Debugw("Katana is up to date", "version", u.current)
		return
	}
	u.log.Warnw("New release is available", "currentVersion", u.current.String(),
		"newVersion", latest.Version.String(), "link", u.link)
}

func (u *Upgrader) Latest(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.apiURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	release := new(Release)
	if err = json.NewDecoder(resp.Body).Decode(release); err != nil {
		return nil, err
	}
	if release.Version == nil {
		return nil, fmt.Errorf("release without version")
	}
	return release, nil
}

// NeedsUpdate reports whether latest is a newer major, minor or patch release than current.
// Pre-release and build metadata are ignored.
func NeedsUpdate(current, latest *semver.Version) bool {
	c, err := semver.NewVersion(fmt.Sprintf("%d.%d.%d", current.Major(), current.Minor(), current.Patch()))
	if err != nil {
		return false
	}
	l, err := semver.NewVersion(fmt.Sprintf("%d.%d.%d", latest.Major(), latest.Minor(), latest.Patch()))
	if err != nil {
		return false
	}
	return l.GreaterThan(c)
}
