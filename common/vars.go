package common

// Version is overridden at build time with -ldflags "-X github.com/ruteri/tee-ta-bridge/common.Version=..."
var Version = "dev"

// PackageName is used as the metrics namespace.
const PackageName = "ta_bridge"
