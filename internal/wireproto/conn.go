package wireproto

import (
	"bufio"
	"errors"
	"io"
	"log"
	"net"
	"sync"

	"github.com/matthewbaird/eavdb/internal/notify"
	"github.com/matthewbaird/eavdb/internal/session"
)

// notificationSentinel tags an out-of-band frame carrying a delivered
// Notification rather than a response to a client command (spec.md §4.9,
// "an additional SUBSCRIBE verb... streams notifications on the same
// connection using out-of-band framed messages prefixed with a sentinel
// verb").
const notificationSentinel = "*MESSAGE*"

// Server accepts TCP connections and runs the command loop from spec.md
// §4.9/§5 on each: a reader that parses frames and submits them to the
// dispatcher, and a writer that serializes responses and notifications in
// the order they are produced for that connection.
type Server struct {
	dispatcher *Dispatcher
	sessions   *session.Manager
}

func NewServer(dispatcher *Dispatcher, sessions *session.Manager) *Server {
	return &Server{dispatcher: dispatcher, sessions: sessions}
}

// Serve accepts connections on ln until it returns an error (including
// ln.Close from the caller).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	sess := s.sessions.Open()
	defer func() {
		s.sessions.Close(sess.ID)
		for _, id := range sess.SubscriptionIDs() {
			s.dispatcher.engine.Notify().Unregister(id)
		}
	}()

	var writeMu sync.Mutex
	write := func(f Frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return Encode(conn, f)
	}

	// queuePumps tracks one goroutine per active subscription on this
	// connection, each draining its notify.Queue into out-of-band frames.
	queuePumps := make(map[string]chan struct{})
	defer func() {
		for _, stop := range queuePumps {
			close(stop)
		}
	}()

	reader := bufio.NewReader(conn)
	for {
		frame, err := Decode(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("wireproto: decode error on %s: %v", conn.RemoteAddr(), err)
			}
			return
		}
		args, err := Args(frame)
		if err != nil {
			if werr := write(ErrorFrame("ARGS", err.Error())); werr != nil {
				return
			}
			continue
		}

		sess.Touch()
		resp, sub, quit := s.dispatcher.Handle(sess, args)
		if err := write(resp); err != nil {
			return
		}

		if sub != nil {
			stop := make(chan struct{})
			queuePumps[sub.SubscriptionID] = stop
			go pumpNotifications(sub.Queue, write, stop)
		}
		if quit {
			return
		}
	}
}

// pumpNotifications blocks on queue.PopFront, writing each delivered
// Notification as an out-of-band frame tagged with notificationSentinel,
// until the queue is closed or stop fires.
func pumpNotifications(queue *notify.Queue, write func(Frame) error, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, ok := queue.PopFront()
		if !ok {
			return // queue closed
		}
		if err := write(encodeNotification(n)); err != nil {
			return
		}
	}
}

func encodeNotification(n notify.Notification) Frame {
	ctxItems := make([]Frame, 0, len(n.Context))
	for i := 0; i < len(n.Context); i++ {
		cv, ok := n.Context[i]
		if !ok {
			continue
		}
		if cv.Unresolved {
			ctxItems = append(ctxItems, ArrayFrame(Integer(int64(i)), ErrorFrame("BADIND", "unresolved context path")))
			continue
		}
		ctxItems = append(ctxItems, ArrayFrame(Integer(int64(i)), BulkText(EncodeValue(cv.Value))))
	}

	return ArrayFrame(
		SimpleString(notificationSentinel),
		BulkText(n.ConfigID),
		Integer(int64(n.Entity)),
		Integer(int64(n.Field)),
		ArrayFrame(BulkText(EncodeValue(n.Old.Value)), Integer(n.Old.Timestamp), BulkText(n.Old.Writer)),
		ArrayFrame(BulkText(EncodeValue(n.New.Value)), Integer(n.New.Timestamp), BulkText(n.New.Writer)),
		ArrayFrame(ctxItems...),
	)
}
