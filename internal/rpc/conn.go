package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"lightning-gateway/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport frames one client connection: one UTF-8 JSON object per
// message in either direction.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Conn serves one client. A fixed pool of workers shares the inbound
// queue, so a worker parked inside a feed does not stop the others from
// answering control requests. All writes funnel through a single writer
// goroutine.
type Conn struct {
	id         string
	transport  Transport
	session    *Session
	dispatcher *Dispatcher
	poolSize   int

	inbound   chan []byte
	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	feedMu     sync.Mutex
	feeds      map[int]*feed
	nextFeedID int
}

func newConn(transport Transport, dispatcher *Dispatcher, poolSize int) *Conn {
	return &Conn{
		id:         uuid.NewString(),
		transport:  transport,
		session:    &Session{},
		dispatcher: dispatcher,
		poolSize:   poolSize,
		inbound:    make(chan []byte, poolSize),
		outbound:   make(chan []byte, 64),
		done:       make(chan struct{}),
		feeds:      make(map[int]*feed),
	}
}

// run blocks until the client disconnects or the transport fails, then
// tears down every worker and feed owned by the connection.
func (c *Conn) run(ctx context.Context) {
	logger.Info("Connection opened", zap.String("conn_id", c.id))

	c.wg.Add(1)
	go c.writePump()

	for i := 0; i < c.poolSize; i++ {
		c.wg.Add(1)
		go c.worker(ctx)
	}

readLoop:
	for {
		frame, err := c.transport.ReadMessage()
		if err != nil {
			logger.Info("Connection closed",
				zap.String("conn_id", c.id), zap.Error(err))
			break
		}
		select {
		case c.inbound <- frame:
		case <-c.done:
			break readLoop
		}
	}

	c.close()
	c.wg.Wait()
}

// close is safe to call from any goroutine and more than once. inbound is
// never closed: the read loop may be blocked sending into it, and the
// workers already exit via done.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.feedMu.Lock()
		for _, f := range c.feeds {
			f.doCancel()
		}
		c.feedMu.Unlock()

		_ = c.transport.Close()
	})
}

func (c *Conn) worker(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case frame := <-c.inbound:
			if resp := c.dispatcher.Dispatch(ctx, c, frame); resp != nil {
				c.send(resp)
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writePump() {
	defer c.wg.Done()
	for {
		select {
		case data := <-c.outbound:
			if err := c.transport.WriteMessage(data); err != nil {
				logger.Warn("Write failed",
					zap.String("conn_id", c.id), zap.Error(err))
				// A dead write side takes the whole connection down;
				// without this, workers block on outbound forever.
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// send serializes v and queues it for the writer. Frames queued after the
// connection is closed are dropped.
func (c *Conn) send(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to encode frame",
			zap.String("conn_id", c.id), zap.Error(err))
		return
	}
	select {
	case c.outbound <- data:
	case <-c.done:
	}
}

// registerFeed allocates a feed slot. The quota is checked before the
// duplicate-type rule so an exhausted connection always gets the quota
// answer.
func (c *Conn) registerFeed(feedType string, quota int) (*feed, *Error) {
	c.feedMu.Lock()
	defer c.feedMu.Unlock()

	if len(c.feeds) >= quota {
		return nil, NewError(CodeInvalidRequest, "You have reached the max number of feeds")
	}
	for _, existing := range c.feeds {
		if existing.feedType == feedType {
			return nil, NewError(CodeInvalidRequest,
				fmt.Sprintf("Feed type %s already exists", feedType))
		}
	}

	c.nextFeedID++
	f := &feed{id: c.nextFeedID, feedType: feedType, cancel: make(chan struct{})}
	c.feeds[f.id] = f
	return f, nil
}

func (c *Conn) lookupFeed(id int) (*feed, bool) {
	c.feedMu.Lock()
	defer c.feedMu.Unlock()
	f, ok := c.feeds[id]
	return f, ok
}

func (c *Conn) removeFeed(id int) {
	c.feedMu.Lock()
	delete(c.feeds, id)
	c.feedMu.Unlock()
}
