package browser

import "strings"

// processLostPhrases are disconnect messages emitted by the CDP transport
// when the browser process has gone away.
// TODO: replace with typed transport errors once chromedp exposes them.
var processLostPhrases = []string{
	"connection is closed",
	"connection closed",
	"not connected",
	"browser has been closed",
	"websocket: close",
	"broken pipe",
	"connection reset by peer",
}

// IsProcessLost reports whether a tab-creation error message indicates that
// the browser process is unusable and must be replaced.
func IsProcessLost(msg string) bool {
	msg = strings.ToLower(msg)
	for _, phrase := range processLostPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
