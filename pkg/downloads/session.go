package downloads

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/kyonifer/silveran-reader-sub004/pkg/remote"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateTransferring State = "transferring"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

type EventKind string

const (
	EventResponse  EventKind = "response"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// Event is one step of a transfer. Seq increases by one for every event of a
// session.
type Event struct {
	SessionID   string                      `json:"session_id"`
	Ref         remote.AssetRef             `json:"ref"`
	Seq         uint64                      `json:"seq"`
	Kind        EventKind                   `json:"kind"`
	Description *remote.ResponseDescription `json:"description,omitempty"`
	Received    int64                       `json:"received"`
	Expected    *int64                      `json:"expected,omitempty"`
	// TempPath is set on EventCompleted. The caller moves the file into place.
	TempPath    string             `json:"temp_path,omitempty"`
	FailureKind remote.FailureKind `json:"failure_kind,omitempty"`
	Error       string             `json:"error,omitempty"`
	Err         error              `json:"-"`
}

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	ID        string          `json:"id"`
	Ref       remote.AssetRef `json:"ref"`
	State     State           `json:"state"`
	Received  int64           `json:"received"`
	Expected  *int64          `json:"expected,omitempty"`
	StartedAt time.Time       `json:"started_at"`
}

// Session drives one download. Its events must be drained, since a full
// channel pauses the transfer.
type Session struct {
	ID        string
	Ref       remote.AssetRef
	StartedAt time.Time

	transport Transport
	tempDir   string
	resume    bool
	bufSize   int
	cancel    context.CancelFunc

	events chan Event
	done   chan struct{}

	mu        sync.Mutex
	state     State
	seq       uint64
	cancelSeq uint64
	received  int64
	expected  *int64
	result    Event
}

func (s *Session) Events() <-chan Event {
	return s.events
}

// Done is closed once the session reached a terminal state, left its
// coordinator and closed its events channel.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends and returns its terminal event. For a
// cancelled session the returned event has no kind.
func (s *Session) Wait() Event {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CancelSeq is the sequence number of the last event that may have been
// emitted before cancellation. It is zero unless the session was cancelled.
func (s *Session) CancelSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelSeq
}

func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:        s.ID,
		Ref:       s.Ref,
		State:     s.state,
		Received:  s.received,
		Expected:  s.expected,
		StartedAt: s.StartedAt,
	}
}

// Cancel stops a transfer that hasn't finished yet and reports whether it
// did. Once it returns true nothing more is written and no event is numbered
// after CancelSeq. An event numbered before the cancel may still be in
// flight to the channel.
func (s *Session) Cancel() bool {
	if !s.markCancelled() {
		return false
	}
	s.cancel()
	return true
}

func (s *Session) markCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = StateCancelled
	s.cancelSeq = s.seq
	return true
}

// transition moves a live session forward. It fails once the session is
// terminal.
func (s *Session) transition(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = to
	return true
}

// emit numbers and delivers ev. It returns false when the session was
// cancelled, in which case ev was dropped.
func (s *Session) emit(ctx context.Context, ev Event) bool {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.seq++
	ev.Seq = s.seq
	ev.SessionID = s.ID
	ev.Ref = s.Ref
	s.mu.Unlock()

	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish moves the session into a terminal state and emits the terminal
// event. A session that was cancelled in the meantime stays cancelled.
func (s *Session) finish(ctx context.Context, state State, ev Event) bool {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.state = state
	s.seq++
	ev.Seq = s.seq
	ev.SessionID = s.ID
	ev.Ref = s.Ref
	s.result = ev
	s.mu.Unlock()

	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
	return true
}

// write appends p unless the session was cancelled.
func (s *Session) write(f *os.File, p []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCancelled {
		return false, nil
	}
	if _, err := f.Write(p); err != nil {
		return false, errors.WithStack(err)
	}
	s.received += int64(len(p))
	return true, nil
}

func (s *Session) progress() (int64, *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received, s.expected
}

func (s *Session) run(ctx context.Context, onDone func()) {
	log := logger.FromContext(ctx).Data(logger.Data{
		"session_id": s.ID,
		"book_uuid":  s.Ref.BookUUID,
		"variant":    s.Ref.Variant,
	})

	defer func() {
		s.cancel()
		onDone()
		close(s.events)
		close(s.done)
	}()

	if err := s.transfer(ctx); err != nil && !s.cancelledBy(ctx) {
		kind := remote.KindOf(err)
		received, expected := s.progress()
		failed := s.finish(ctx, StateFailed, Event{
			Kind:        EventFailed,
			Received:    received,
			Expected:    expected,
			FailureKind: kind,
			Error:       err.Error(),
			Err:         err,
		})
		if failed {
			log.Err(err).Warn("transfer failed", logger.Data{"failure_kind": kind})
			return
		}
	}

	// Anything still live here stopped because its context ended.
	if !s.State().Terminal() {
		s.markCancelled()
	}
	if s.State() == StateCancelled {
		if err := removeTransfer(s.tempDir, s.Ref); err != nil {
			log.Err(err).Warn("unable to remove cancelled transfer")
		}
		log.Info("transfer cancelled")
		return
	}
	log.Info("transfer completed")
}

// transfer returns nil on success and when cancelled; State tells the two
// apart.
func (s *Session) transfer(ctx context.Context) error {
	if !s.transition(StateConnecting) {
		return nil
	}

	var offset int64
	var validator string
	if s.resume {
		offset, validator = resumePoint(s.tempDir, s.Ref)
	} else if err := removePartial(s.tempDir, s.Ref); err != nil {
		return err
	}

	stream, err := s.transport.OpenDownload(ctx, s.Ref, remote.DownloadOptions{Offset: offset, IfRange: validator})
	if err != nil {
		if s.cancelledBy(ctx) {
			return nil
		}
		return err
	}
	defer stream.Body.Close()

	desc := stream.Description
	file, err := s.openPart(desc, offset)
	if err != nil {
		return err
	}
	defer file.Close()

	s.mu.Lock()
	s.received = desc.Offset
	s.expected = desc.ExpectedBytes
	s.mu.Unlock()

	if !s.transition(StateTransferring) {
		return nil
	}
	if !s.emit(ctx, Event{Kind: EventResponse, Description: &desc, Received: desc.Offset, Expected: desc.ExpectedBytes}) {
		return nil
	}

	meta := &partialMetadata{
		BookUUID:     s.Ref.BookUUID,
		Variant:      s.Ref.Variant,
		ETag:         desc.ETag,
		LastModified: desc.LastModified,
		Received:     desc.Offset,
	}
	if err := writeMetadata(s.tempDir, s.Ref, meta); err != nil {
		return err
	}

	buf := make([]byte, s.bufSize)
	for {
		n, readErr := stream.Body.Read(buf)
		if n > 0 {
			ok, err := s.write(file, buf[:n])
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			received, expected := s.progress()
			if !s.emit(ctx, Event{Kind: EventProgress, Received: received, Expected: expected}) {
				return nil
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if s.cancelledBy(ctx) {
				return nil
			}
			s.saveProgress(meta)
			return errors.Wrap(remote.ErrNonHTTPResponse, readErr.Error())
		}
	}

	received, expected := s.progress()
	if expected != nil && received < *expected {
		s.saveProgress(meta)
		return errors.Wrapf(remote.ErrNonHTTPResponse, "body ended after %d of %d bytes", received, *expected)
	}

	if err := file.Close(); err != nil {
		return errors.WithStack(err)
	}
	return s.complete(ctx, desc, received, expected)
}

// complete turns the partial file into the finished one and emits
// EventCompleted. A cancel that wins the race leaves no file behind.
func (s *Session) complete(ctx context.Context, desc remote.ResponseDescription, received int64, expected *int64) error {
	tempPath := completedFilename(s.tempDir, s.Ref)
	if err := os.Rename(partialFilename(s.tempDir, s.Ref), tempPath); err != nil {
		return errors.WithStack(err)
	}
	_ = removePartial(s.tempDir, s.Ref)

	completed := s.finish(ctx, StateCompleted, Event{
		Kind:        EventCompleted,
		Description: &desc,
		Received:    received,
		Expected:    expected,
		TempPath:    tempPath,
	})
	if !completed {
		return removeTransfer(s.tempDir, s.Ref)
	}
	return nil
}

// openPart opens the partial file, appending when the server honoured the
// range request and truncating otherwise.
func (s *Session) openPart(desc remote.ResponseDescription, requested int64) (*os.File, error) {
	if err := os.MkdirAll(s.tempDir, 0755); err != nil {
		return nil, errors.WithStack(err)
	}
	path := partialFilename(s.tempDir, s.Ref)

	if requested > 0 && desc.Offset == requested {
		f, err := os.OpenFile(path, os.O_WRONLY, 0600)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if err := f.Truncate(requested); err != nil {
			f.Close()
			return nil, errors.WithStack(err)
		}
		if _, err := f.Seek(requested, io.SeekStart); err != nil {
			f.Close()
			return nil, errors.WithStack(err)
		}
		return f, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	return f, errors.WithStack(err)
}

// cancelledBy treats a cancelled parent context like an explicit Cancel.
func (s *Session) cancelledBy(ctx context.Context) bool {
	if ctx.Err() == nil {
		return s.State() == StateCancelled
	}
	s.markCancelled()
	return s.State() == StateCancelled
}

func (s *Session) saveProgress(meta *partialMetadata) {
	received, _ := s.progress()
	meta.Received = received
	_ = writeMetadata(s.tempDir, s.Ref, meta)
}
