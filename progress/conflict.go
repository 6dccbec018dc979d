package progress

import (
	"github.com/samber/mo"
	"github.com/spf13/viper"

	"github.com/shelfplay-cli/shelfplay/book"
	"github.com/shelfplay-cli/shelfplay/key"
)

// Choice is the outcome of a resume conflict.
type Choice int

const (
	UseServer Choice = iota
	UseLocal
	Cancel
)

// Resolver decides which position wins when the server and the local store
// disagree in a way that looks like a deliberate reset.
type Resolver interface {
	Resolve(b *book.Book, serverSeconds, localSeconds float64) (Choice, error)
}

// ServerWins is the headless resolver. The server is the source of truth when
// nobody can be asked.
type ServerWins struct{}

func (ServerWins) Resolve(*book.Book, float64, float64) (Choice, error) {
	return UseServer, nil
}

// ResetDetected reports whether the server position looks like a deliberate
// reset of local progress: the server has no record or a record at zero while
// the local record is far enough in that losing it would hurt.
func ResetDetected(server mo.Option[float64], localSeconds float64) bool {
	minimum := viper.GetFloat64(key.SyncResetMinimumSeconds)
	if localSeconds <= minimum {
		return false
	}

	seconds, ok := server.Get()
	return !ok || seconds == 0
}
