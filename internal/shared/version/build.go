package version

// Build metadata, overridden at link time:
//
//	go build -ldflags "-X github.com/vetiver-inc/vetiver/internal/shared/version.Current=v1.2.3"
var (
	Current = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
