package upgrader_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/NethermindEth/katana/upgrader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type warnLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *warnLogger) Debugw(string, ...any) {}
func (l *warnLogger) Infow(string, ...any)  {}
func (l *warnLogger) Errorw(string, ...any) {}

func (l *warnLogger) Warnw(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *warnLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

func TestNeedsUpdate(t *testing.T) {
	tests := map[string]struct {
		current, latest string
		want            bool
	}{
		"up to date":          {current: "1.2.0", latest: "1.2.0"},
		"new patch":           {current: "1.2.0", latest: "1.2.1", want: true},
		"new minor":           {current: "1.2.0", latest: "1.3.0", want: true},
		"new major":           {current: "1.2.0", latest: "2.0.0", want: true},
		"older":               {current: "1.2.0", latest: "1.1.9"},
		"rc of same version":  {current: "1.2.0", latest: "1.2.0-rc0"},
		"release after an rc": {current: "1.2.0-rc0", latest: "1.2.1", want: true},
		"build metadata":      {current: "1.2.0+abc", latest: "1.2.0+def"},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			current := semver.MustParse(test.current)
			latest := semver.MustParse(test.latest)
			assert.Equal(t, test.want, upgrader.NeedsUpdate(current, latest))
		})
	}
}

func TestUpgrader(t *testing.T) {
	var mu sync.Mutex
	release := upgrader.Release{Version: semver.MustParse("0.2.0")}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"tag_name":   "v" + release.Version.String(),
			"draft":      release.Draft,
			"prerelease": release.PreRelease,
		}))
	}))
	t.Cleanup(srv.Close)

	log := new(warnLogger)
	u := upgrader.New(semver.MustParse("0.1.0"), srv.URL, upgrader.DefaultReleaseURL, time.Hour, log).
		WithClient(srv.Client())

	latest, err := u.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.2.0", latest.Version.String())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- u.Run(ctx) }()
	require.Eventually(t, func() bool { return log.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	t.Run("drafts are ignored", func(t *testing.T) {
		mu.Lock()
		release.Draft = true
		mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		require.NoError(t, u.Run(ctx))
		assert.Equal(t, 1, log.count())
	})
}
