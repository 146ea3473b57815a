package version

// Version is the current version of Warpmeet.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/BioHazard786/Warpmeet/internal/version.Version=v1.0.0'"
var Version = "dev"
