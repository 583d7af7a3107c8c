package artifacts

import _ "embed"

// Default settings template written on first run.

//go:embed global/settings.yaml
var DefaultSettings []byte
