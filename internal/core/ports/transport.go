package ports

import (
	"context"
	"fmt"
)

// Transport is one open bidirectional frame connection.
// ReadMessage is called from a single reader goroutine; writes come from the
// session loop only.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	WritePing() error
	SetPongHandler(fn func())
	Close(code int, reason string) error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// CloseError is returned by ReadMessage when the peer sent a close frame or
// the connection dropped.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("transport closed: code %d (%s)", e.Code, e.Reason)
}
