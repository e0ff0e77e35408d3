package about

// Version is overridden at build time with -ldflags "-X github.com/ocuroot/gitdrop/about.Version=..."
var Version = "0.0.0-dev"
