package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

const fullConfig = `
[engine]
workers = 2
max_attempts = 7
backoff_base = "500ms"
backoff_cap = "1m"
backoff_jitter = 0.1
per_site_concurrency_limit = 3
per_site_rate_limit = 5.0
lease_duration = "30s"
poll_interval = "250ms"
stage_timeout = "10s"

[policy]
conflict = "newest_wins"

[policy.fields.article]
exclude = ["author_id"]
rename = { body = "content" }

[scheduler]
enabled = true
tick = "30s"
history_limit = 20

[[sites]]
id = "main"
name = "Main site"
driver = "sqlite"
dsn = "main.db"
kinds = ["article", "page"]

[[sites]]
id = "blog"
driver = "memory"

[[schedules]]
id = "nightly-articles"
source = "main"
targets = ["blog"]
selector = "article:*"
interval = "24h"

[[schedules]]
id = "paused"
source = "main"
targets = ["blog"]
selector = "page:category=news"
interval = "1h"
enabled = false
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadSettings_Full(t *testing.T) {
	settings, err := LoadSettings(writeConfig(t, fullConfig))
	require.NoError(t, err)

	assert.Equal(t, domain.EngineConfig{
		Workers:            2,
		MaxAttempts:        7,
		BackoffBase:        500 * time.Millisecond,
		BackoffCap:         time.Minute,
		BackoffJitter:      0.1,
		PerSiteConcurrency: 3,
		PerSiteRateLimit:   5,
		LeaseDuration:      30 * time.Second,
		PollInterval:       250 * time.Millisecond,
		StageTimeout:       10 * time.Second,
	}, settings.Engine)

	assert.Equal(t, domain.NewestWins, settings.Policy.Conflict)
	article := settings.Policy.Fields.For(domain.KindArticle)
	assert.Equal(t, []string{"author_id"}, article.Exclude)
	assert.Equal(t, "content", article.TargetName("body"))

	assert.Equal(t, domain.SchedulerConfig{Enabled: true, Tick: 30 * time.Second, HistoryLimit: 20}, settings.Scheduler)

	require.Len(t, settings.Sites, 2)
	assert.Equal(t, domain.SiteDescriptor{
		ID:     "main",
		Name:   "Main site",
		Driver: "sqlite",
		DSN:    "main.db",
		Kinds:  []domain.ContentKind{domain.KindArticle, domain.KindPage},
	}, settings.Sites[0])

	require.Len(t, settings.Schedules, 2)
	nightly := settings.Schedules[0]
	assert.Equal(t, "main", nightly.SourceSiteID)
	assert.Equal(t, []string{"blog"}, nightly.TargetSiteIDs)
	assert.Equal(t, domain.ContentSelector{Kind: domain.KindArticle, All: true}, nightly.Selector)
	assert.Equal(t, 24*time.Hour, nightly.Interval)
	assert.True(t, nightly.Enabled)
	assert.False(t, settings.Schedules[1].Enabled)
	assert.Equal(t, "news", settings.Schedules[1].Selector.Category)
}

func TestLoadSettings_MissingFileUsesDefaults(t *testing.T) {
	settings, err := LoadSettings(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), settings)
}

func TestLoadSettings_PartialKeepsDefaults(t *testing.T) {
	settings, err := LoadSettings(writeConfig(t, "[engine]\nworkers = 9\n"))
	require.NoError(t, err)

	want := domain.DefaultEngineConfig()
	want.Workers = 9
	assert.Equal(t, want, settings.Engine)
	assert.Equal(t, domain.SourceWins, settings.Policy.Conflict)
	assert.Equal(t, domain.DefaultSchedulerConfig(), settings.Scheduler)
	assert.Empty(t, settings.Sites)
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"malformed toml", "[engine\n", "parse"},
		{"bad duration", "[engine]\nbackoff_base = \"soon\"\n", "engine.backoff_base"},
		{"engine validation", "[engine]\nworkers = 0\n", "workers"},
		{"unknown conflict policy", "[policy]\nconflict = \"coin_flip\"\n", "coin_flip"},
		{"bad field kind", "[policy.fields.\"a b\"]\nexclude = [\"x\"]\n", "reserved"},
		{"bad tick", "[scheduler]\ntick = \"1 minute\"\n", "scheduler.tick"},
		{"bad selector", "[[schedules]]\nid = \"s\"\nselector = \"article\"\ninterval = \"1h\"\n", "schedule s"},
		{"bad interval", "[[schedules]]\nid = \"s\"\nselector = \"article:*\"\ninterval = \"daily\"\n", "schedules.s.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSettings(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadSettings_SitesFile(t *testing.T) {
	dir := t.TempDir()
	sites := `
sites:
  - id: shop
    driver: sqlite
    dsn: shop.db
    kinds: [config]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sites.yaml"), []byte(sites), 0600))
	path := filepath.Join(dir, "config.toml")
	content := "sites_file = \"sites.yaml\"\n\n[[sites]]\nid = \"main\"\ndriver = \"memory\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	settings, err := LoadSettings(path)
	require.NoError(t, err)

	require.Len(t, settings.Sites, 2)
	assert.Equal(t, "main", settings.Sites[0].ID)
	assert.Equal(t, "shop", settings.Sites[1].ID)
	assert.Equal(t, []domain.ContentKind{domain.KindConfig}, settings.Sites[1].Kinds)
}

func TestLoadSettings_SitesFileMissing(t *testing.T) {
	_, err := LoadSettings(writeConfig(t, "sites_file = \"nope.yaml\"\n"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadPolicy(t *testing.T) {
	policy, err := LoadPolicy(writeConfig(t, fullConfig))
	require.NoError(t, err)
	assert.Equal(t, domain.NewestWins, policy.Conflict)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
