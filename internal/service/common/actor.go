//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"errors"
	"os"
	"os/user"
	"strings"

	"github.com/oshokin/gacha-release/internal/domain/release"
)

var errActorUnknown = errors.New("neither hostname nor user can be determined")

// ciMarkers maps environment variables set by CI systems to their names.
// Order matters: the generic CI variable is set by most of the others too.
var ciMarkers = []struct {
	env  string
	name string
}{
	{env: "GITHUB_ACTIONS", name: "github-actions"},
	{env: "GITLAB_CI", name: "gitlab-ci"},
	{env: "BUILDKITE", name: "buildkite"},
	{env: "CIRCLECI", name: "circleci"},
	{env: "CI", name: "ci"},
}

// DetectActor describes who started the run: machine, user, process and CI system.
// Missing pieces are left empty; it fails only when neither host nor user is known.
func DetectActor() (*release.Actor, error) {
	actor := &release.Actor{
		Hostname: detectHostname(),
		Username: detectUsername(),
		PID:      os.Getpid(),
		CI:       detectCI(),
	}

	if actor.Hostname == "" && actor.Username == "" {
		return nil, errActorUnknown
	}

	return actor, nil
}

func detectHostname() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}

	return os.Getenv("HOSTNAME")
}

// detectUsername prefers the account database and falls back to the login environment,
// which is all a container with an unnamed UID has.
func detectUsername() string {
	if current, err := user.Current(); err == nil && current.Username != "" {
		return current.Username
	}

	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if name := strings.TrimSpace(os.Getenv(key)); name != "" {
			return name
		}
	}

	return ""
}

func detectCI() string {
	for _, marker := range ciMarkers {
		value := strings.ToLower(strings.TrimSpace(os.Getenv(marker.env)))
		if value != "" && value != "false" && value != "0" {
			return marker.name
		}
	}

	return ""
}
