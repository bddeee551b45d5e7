package api

import (
	"time"

	"github.com/finvisor/finvisor/pkg/wizard"
)

// Config is the API server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string

	// BodyLimit caps request bodies in bytes; larger requests get 413.
	// Zero means DefaultBodyLimit.
	BodyLimit int

	// LedgerToken, when set, is the bearer token /ledger requires.
	LedgerToken string

	// Per-client-IP limits on /api and /ledger. A zero rate disables limiting.
	RequestsPerSecond float64
	Burst             int

	// WordPause is the delay between words of a streamed letter. Zero means
	// appeal.WordPause; a negative value streams without pausing.
	WordPause time.Duration

	// Sleeper paces wizard step playback. Nil plays in real time.
	Sleeper wizard.Sleeper
}
