package docsdk

import (
	"fmt"
	"runtime"

	"github.com/docboxhq/docbox/internal/version"
)

const (
	HeaderUserAgent   = "User-Agent"
	HeaderAppVersion  = "X-DocBox-Version"
	HeaderDeviceId    = "X-DocBox-Device-Id"
	HeaderBaseVersion = "X-DocBox-Base-Version"
)

var DocBoxUserAgent = fmt.Sprintf("DocBox/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)
