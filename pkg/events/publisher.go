package events

import (
	"encoding/json"
	"fmt"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/dd0wney/cluso-bench/pkg/logging"
)

// Publisher streams progress on a PUB socket. Each message is the task kind,
// a space, then the JSON observation, so SUB sockets can filter by kind.
type Publisher struct {
	sock   mangos.Socket
	addr   string
	logger logging.Logger
}

// NewPublisher listens on addr (tcp://host:port, inproc://name, ...)
func NewPublisher(addr string, logger logging.Logger) (*Publisher, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create pub socket: %w", err)
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger.Info("progress publisher listening", logging.String("addr", addr))
	return &Publisher{sock: sock, addr: addr, logger: logger}, nil
}

// Publish implements Sink. PUB sockets drop messages for slow subscribers
// instead of blocking.
func (p *Publisher) Publish(ev Progress) {
	data, err := Encode(ev)
	if err != nil {
		p.logger.Warn("failed to encode progress", logging.Error(err))
		return
	}
	if err := p.sock.Send(data); err != nil {
		p.logger.Debug("progress send failed", logging.Error(err), logging.TaskID(ev.TaskID))
	}
}

// Addr returns the listen address
func (p *Publisher) Addr() string {
	return p.addr
}

// Close closes the socket
func (p *Publisher) Close() error {
	return p.sock.Close()
}

// Encode frames an observation for the wire
func Encode(ev Progress) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(ev.Kind)+1+len(body))
	out = append(out, ev.Kind...)
	out = append(out, ' ')
	return append(out, body...), nil
}

// Decode parses a framed observation
func Decode(data []byte) (Progress, error) {
	var ev Progress
	for i, c := range data {
		if c == ' ' {
			if err := json.Unmarshal(data[i+1:], &ev); err != nil {
				return Progress{}, fmt.Errorf("failed to decode progress: %w", err)
			}
			return ev, nil
		}
	}
	return Progress{}, fmt.Errorf("failed to decode progress: missing kind prefix")
}
