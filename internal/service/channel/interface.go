package channel

import "context"

/*===================== Transport ========================*/

// Socket is one established connection. *websocket.Conn satisfies it.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer establishes a new Socket. A failed dial is treated exactly like
// a socket closing.
type Dialer interface {
	Dial(ctx context.Context) (Socket, error)
}

/*===================== Notifications ========================*/

// Handlers are called outside the channel's lock, from the goroutine that
// observed the event. Nil handlers are skipped.
type Handlers struct {
	OnMessage     func(ctx context.Context, data []byte)
	OnStateChange func(ctx context.Context, st Status)
	OnFailed      func(ctx context.Context, err error)
}
