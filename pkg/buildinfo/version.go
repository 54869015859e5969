// Package buildinfo exposes the build identity of the running service.
//
// The graph-builder and policy-engine ship from the same module, so they
// share one set of ldflags-injected values; the service name tells them
// apart in version output and startup logs:
//
//	go build -ldflags "-X github.com/corestream/cincinnati/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/corestream/cincinnati/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/corestream/cincinnati/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import "fmt"

var (
	// Version is the semantic version (e.g., "v1.2.3").
	Version = "dev"

	// Commit is the git commit SHA.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// Info identifies one service build.
type Info struct {
	Service string
	Version string
	Commit  string
	Date    string
}

// ForService returns the build identity of the named service binary.
func ForService(name string) Info {
	return Info{
		Service: name,
		Version: Version,
		Commit:  Commit,
		Date:    Date,
	}
}

// Short renders the one-line form used in startup logs.
func (i Info) Short() string {
	return fmt.Sprintf("%s %s (%s)", i.Service, i.Version, i.Commit)
}

// VersionTemplate renders the cobra version template for this service.
func (i Info) VersionTemplate() string {
	return fmt.Sprintf("%s %s\ncommit: %s\nbuilt: %s\n", i.Service, i.Version, i.Commit, i.Date)
}
