package config

// Version is the labweave binary version.
// Set at build time via: -ldflags "-X github.com/labweave/labweave/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
