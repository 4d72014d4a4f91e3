package relay

import (
	stdlog "log"
)

// Package-level logger for connection and room events.
var log = stdlog.New(stdlog.Writer(), "[relay] ", stdlog.LstdFlags)
