package commands

import (
	"fmt"

	"panfs/internal/config"
	"panfs/internal/fs"
	"panfs/internal/remote"
)

// newPanFS builds a filesystem handle from the user settings.
func newPanFS() (*fs.PanFS, *config.Settings, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Cookie == "" {
		return nil, nil, fmt.Errorf("no credential cookie configured; set cookie in %s or PANFS_COOKIE", config.SettingsPath())
	}
	client := remote.NewHTTPClient(cfg.Endpoint, cfg.Cookie)
	pan, err := fs.New(client, fs.Options{
		AttrTTL:       cfg.AttrTTL(),
		AttrCacheSize: cfg.AttrCacheSize,
		DirCacheSize:  cfg.DirCacheSize,
		PathIndexSize: cfg.PathIndexSize,
		PageSize:      cfg.PageSize,
	})
	if err != nil {
		return nil, nil, err
	}
	return pan, cfg, nil
}

// humanSize renders a byte count in the usual 1024-based units.
func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
