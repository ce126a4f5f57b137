package choreo

import _ "embed"

// Version is the release of the choreo module.
//
//go:embed VERSION
var Version string
