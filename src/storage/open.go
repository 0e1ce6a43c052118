package storage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sofmeright/stagehand/src/runner"
)

// Options configures the gsutil-backed client returned by Open.
type Options struct {
	GSUtilPath string
	BotoConfig string
	MinVersion string
}

// Open returns a Client able to serve base, chosen by its scheme.
func Open(base string, opts Options, r runner.Runner, log zerolog.Logger) (Client, Location, error) {
	loc, err := ParseLocation(base)
	if err != nil {
		return nil, Location{}, err
	}
	switch loc.Scheme() {
	case "gs":
		g := NewGSUtil(r, opts.GSUtilPath, opts.BotoConfig, log)
		g.MinVersion = opts.MinVersion
		return g, loc, nil
	case "file":
		return Local{}, loc, nil
	default:
		return nil, Location{}, fmt.Errorf("storage: unsupported scheme %q in %s", loc.Scheme(), base)
	}
}
