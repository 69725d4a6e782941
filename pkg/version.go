package pkg

import "fmt"

// Set by the linker at build time.
var (
	ReshardVersion  = "devel"
	GitRevision     = "devel"
	VersionRevision = fmt.Sprintf("%s-%s", ReshardVersion, GitRevision)
)
