package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shelfmetrics/insight-client/internal/session"
	"github.com/shelfmetrics/insight-client/internal/stream"
	"github.com/shelfmetrics/insight-client/pkg/logger"
	"github.com/shelfmetrics/insight-client/pkg/metrics"
)

var (
	// ErrBusy is returned by Submit while another assistant message in the
	// conversation is still streaming. At most one stream runs at a time.
	ErrBusy = errors.New("conversation busy: a query is already streaming")

	// ErrUnknownMessage is returned for message IDs the conversation does
	// not own.
	ErrUnknownMessage = errors.New("unknown message")
)

// Query describes one streamed question, with optional store and date
// scoping forwarded to the server.
type Query struct {
	Question  string
	StoreID   string
	DateRange *DateRange
}

// DateRange bounds a query to an inclusive date window (ISO dates).
type DateRange struct {
	StartDate string
	EndDate   string
}

// Streamer opens the transport for one streamed query. The returned reader
// is owned by the controller and released on every exit path.
type Streamer interface {
	Open(ctx context.Context, sessionID string, q Query) (stream.ChunkReader, error)
}

// Observer receives an immutable snapshot after every message mutation. The
// presentation layer observes; it never mutates.
type Observer interface {
	OnMessageUpdate(msg Message)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Message)

// OnMessageUpdate calls f.
func (f ObserverFunc) OnMessageUpdate(msg Message) { f(msg) }

// MultiObserver fans each update out to several observers in order.
func MultiObserver(obs ...Observer) Observer {
	return multiObserver(obs)
}

type multiObserver []Observer

func (m multiObserver) OnMessageUpdate(msg Message) {
	for _, o := range m {
		if o != nil {
			o.OnMessageUpdate(msg)
		}
	}
}

// Controller is the sole owner and mutator of a conversation's messages.
// Events are applied in the exact order frames arrived; all mutation runs
// under one mutex, so message state is single-writer by construction.
type Controller struct {
	session  *session.Manager
	streamer Streamer
	observer Observer
	log      *logger.Logger
	tracer   trace.Tracer

	mu       sync.Mutex
	messages []*Message
	index    map[string]*Message
	machines map[string]*stateless.StateMachine
	cancels  map[string]context.CancelFunc
	done     map[string]chan struct{}
	active   string
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers the observer notified on every message update.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithLogger sets the controller logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// New creates a controller for one conversation.
func New(sess *session.Manager, streamer Streamer, opts ...Option) *Controller {
	c := &Controller{
		session:  sess,
		streamer: streamer,
		log:      logger.NewNop(),
		tracer:   otel.Tracer("github.com/shelfmetrics/insight-client/internal/conversation"),
		index:    make(map[string]*Message),
		machines: make(map[string]*stateless.StateMachine),
		cancels:  make(map[string]context.CancelFunc),
		done:     make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID returns the opaque identifier attached to every query.
func (c *Controller) SessionID() string {
	return c.session.ID()
}

// Submit appends a terminal user message plus a pending assistant message
// and begins consuming a new stream scoped to the assistant message. It
// returns ErrBusy while a previous assistant message is non-terminal.
func (c *Controller) Submit(ctx context.Context, q Query) (string, error) {
	if q.Question == "" {
		return "", errors.New("question must not be empty")
	}

	c.mu.Lock()
	if c.active != "" {
		c.mu.Unlock()
		return "", ErrBusy
	}

	now := time.Now()
	user := &Message{
		ID:        newID(),
		Role:      RoleUser,
		State:     StateResolved,
		CreatedAt: now,
		Content:   q.Question,
	}
	assistant := &Message{
		ID:        newID(),
		Role:      RoleAssistant,
		State:     StatePending,
		CreatedAt: now,
	}

	c.messages = append(c.messages, user, assistant)
	c.index[user.ID] = user
	c.index[assistant.ID] = assistant
	c.machines[assistant.ID] = newLifecycle()
	c.done[assistant.ID] = make(chan struct{})

	streamCtx, cancel := context.WithCancel(ctx)
	c.cancels[assistant.ID] = cancel
	c.active = assistant.ID

	userSnap := user.Clone()
	assistantSnap := assistant.Clone()
	c.mu.Unlock()

	c.notify(userSnap)
	c.notify(assistantSnap)

	go c.consume(streamCtx, assistant.ID, q)

	return assistant.ID, nil
}

// consume runs the transport loop for one assistant message: pull a chunk,
// decode frames, parse events, apply them in arrival order.
func (c *Controller) consume(ctx context.Context, id string, q Query) {
	ctx, span := c.tracer.Start(ctx, "conversation.stream", trace.WithAttributes(
		attribute.String("session.id", c.session.ID()),
		attribute.String("message.id", id),
	))
	defer span.End()

	metrics.IncrementActiveStreams()
	defer metrics.DecrementActiveStreams()

	rc, err := c.streamer.Open(ctx, c.session.ID(), q)
	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil {
			c.applyFailure(id, ErrorKindCancelled, "query cancelled")
			return
		}
		c.log.Warnw("query stream failed to open", "message_id", id, "error", err)
		c.applyFailure(id, ErrorKindTransport, "could not reach the analytics service")
		return
	}
	defer rc.Close()

	dec := stream.NewDecoder()
	for {
		chunk, err := rc.Next()
		if len(chunk) > 0 {
			for _, f := range dec.Feed(chunk) {
				c.handleFrame(id, f)
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			for _, f := range dec.Finish() {
				c.handleFrame(id, f)
			}
			break
		}
		span.RecordError(err)
		if ctx.Err() != nil {
			c.applyFailure(id, ErrorKindCancelled, "query cancelled")
			return
		}
		c.log.Warnw("query stream broke", "message_id", id, "error", err)
		c.applyFailure(id, ErrorKindTransport, "connection lost before the answer completed")
		return
	}

	// Clean end of stream without a terminal event. A no-op when a final or
	// error event already landed.
	c.applyFailure(id, ErrorKindTransport, "stream ended before a final answer")
}

// handleFrame parses one frame and applies the resulting event. A frame
// that fails to parse is dropped with a diagnostic; the stream continues.
func (c *Controller) handleFrame(id string, f stream.Frame) {
	metrics.FramesDecoded.Inc()

	ev, err := stream.Parse(f)
	if err != nil {
		reason := "invalid"
		var perr *stream.ParseError
		if errors.As(err, &perr) {
			reason = perr.Reason
		}
		metrics.FrameParseFailures.WithLabelValues(reason).Inc()
		c.log.Warnw("dropped malformed frame", "message_id", id, "reason", reason)
		c.recordDiagnostic(id, err.Error())
		return
	}
	metrics.EventsTotal.WithLabelValues(ev.Type()).Inc()

	if err := c.Apply(id, ev); err != nil {
		c.log.Warnw("event not applied", "message_id", id, "type", ev.Type(), "error", err)
	}
}

// Apply applies one parsed event to the given assistant message. Events
// reaching a terminal message are no-ops: state and fields are unchanged.
func (c *Controller) Apply(id string, ev stream.Event) error {
	c.mu.Lock()

	msg := c.index[id]
	if msg == nil {
		c.mu.Unlock()
		return ErrUnknownMessage
	}
	machine := c.machines[id]
	if machine == nil {
		c.mu.Unlock()
		return fmt.Errorf("message %s does not accept stream events", id)
	}
	if msg.State.Terminal() {
		c.mu.Unlock()
		return nil
	}

	switch e := ev.(type) {
	case stream.StatusEvent:
		if err := machine.Fire(triggerStatus); err != nil {
			c.mu.Unlock()
			return err
		}
		msg.State = StateStreaming
		if msg.StreamStarted == nil {
			now := time.Now()
			msg.StreamStarted = &now
		}
		msg.LatestStatus = e.Message
		// Last write wins among non-terminal updates.
		if e.SQL != "" {
			msg.SQL = e.SQL
		}
		if e.RowCount != nil {
			rc := *e.RowCount
			msg.RowCount = &rc
		}

	case stream.FinalEvent:
		if err := machine.Fire(triggerFinal); err != nil {
			c.mu.Unlock()
			return err
		}
		msg.State = StateResolved
		msg.Content = e.Text
		msg.SQL = e.SQL
		rc := e.RowCount
		msg.RowCount = &rc
		msg.Rows = e.Rows
		msg.ExecutionTimeMs = e.ExecutionTimeMs
		msg.Chart = e.Chart
		msg.ChartData = e.ChartData
		msg.QueryType = e.QueryType
		msg.Assumptions = e.Assumptions
		c.finishLocked(msg, "resolved")

	case stream.ErrorEvent:
		if err := machine.Fire(triggerError); err != nil {
			c.mu.Unlock()
			return err
		}
		msg.State = StateFailed
		msg.ErrorMessage = e.Message
		msg.ErrorKind = e.Kind
		msg.Suggestion = e.Suggestion
		c.finishLocked(msg, "error")

	default:
		c.mu.Unlock()
		return fmt.Errorf("unhandled event type %q", ev.Type())
	}

	snap := msg.Clone()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// Cancel forcibly fails a non-terminal message with kind "cancelled" and
// releases the underlying transport. Idempotent once terminal.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()

	msg := c.index[id]
	if msg == nil {
		c.mu.Unlock()
		return ErrUnknownMessage
	}
	machine := c.machines[id]
	if machine == nil || msg.State.Terminal() {
		c.mu.Unlock()
		return nil
	}

	if err := machine.Fire(triggerCancel); err != nil {
		c.mu.Unlock()
		return err
	}
	msg.State = StateFailed
	msg.ErrorKind = ErrorKindCancelled
	msg.ErrorMessage = "query cancelled"
	c.finishLocked(msg, "cancelled")

	snap := msg.Clone()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// applyFailure fails a message out-of-band (transport drop, context
// cancellation). No-op once the message is terminal.
func (c *Controller) applyFailure(id, kind, text string) {
	c.mu.Lock()

	msg := c.index[id]
	machine := c.machines[id]
	if msg == nil || machine == nil || msg.State.Terminal() {
		c.mu.Unlock()
		return
	}

	trigger := triggerError
	if kind == ErrorKindCancelled {
		trigger = triggerCancel
	}
	if err := machine.Fire(trigger); err != nil {
		c.mu.Unlock()
		c.log.Warnw("failure transition rejected", "message_id", id, "error", err)
		return
	}
	msg.State = StateFailed
	msg.ErrorKind = kind
	msg.ErrorMessage = text
	c.finishLocked(msg, kind)

	snap := msg.Clone()
	c.mu.Unlock()

	c.notify(snap)
}

// finishLocked runs exactly once per assistant message, on its terminal
// transition. Caller holds the mutex.
func (c *Controller) finishLocked(msg *Message, outcome string) {
	now := time.Now()
	msg.StreamEnded = &now

	if c.active == msg.ID {
		c.active = ""
	}
	if cancel := c.cancels[msg.ID]; cancel != nil {
		cancel()
		delete(c.cancels, msg.ID)
	}
	if ch, ok := c.done[msg.ID]; ok {
		close(ch)
	}

	metrics.RecordQuery(outcome, now.Sub(msg.CreatedAt).Seconds())
}

// recordDiagnostic notes a dropped frame on the in-flight message.
func (c *Controller) recordDiagnostic(id, detail string) {
	c.mu.Lock()
	msg := c.index[id]
	if msg == nil || msg.State.Terminal() {
		c.mu.Unlock()
		return
	}
	msg.Diagnostics = append(msg.Diagnostics, detail)
	snap := msg.Clone()
	c.mu.Unlock()

	c.notify(snap)
}

// Wait blocks until the message is terminal or ctx ends.
func (c *Controller) Wait(ctx context.Context, id string) (Message, error) {
	c.mu.Lock()
	msg := c.index[id]
	if msg == nil {
		c.mu.Unlock()
		return Message{}, ErrUnknownMessage
	}
	ch := c.done[id]
	if ch == nil || msg.State.Terminal() {
		snap := msg.Clone()
		c.mu.Unlock()
		return snap, nil
	}
	c.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
	return c.Get(id)
}

// Get returns a snapshot of one message.
func (c *Controller) Get(id string) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := c.index[id]
	if msg == nil {
		return Message{}, ErrUnknownMessage
	}
	return msg.Clone(), nil
}

// Messages returns snapshots of all messages in insertion order.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.Clone())
	}
	return out
}

func (c *Controller) notify(msg Message) {
	if c.observer != nil {
		c.observer.OnMessageUpdate(msg)
	}
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
