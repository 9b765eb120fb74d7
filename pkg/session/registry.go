package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/devharness/harnessd/pkg/models"
)

// ErrShuttingDown is returned once Shutdown has begun.
var ErrShuttingDown = errors.New("session registry is shutting down")

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultRingBytes     = 1 << 20 // 1 MiB of retained output per session
	DefaultExitRetention = 5 * time.Minute
	DefaultCols          = 80
	DefaultRows          = 24
	inputQueueDepth      = 256
)

// Config tunes the registry.
type Config struct {
	// RingBytes caps each session's retained output.
	RingBytes int
	// ExitRetention keeps an exited session's ring attachable before the
	// record is dropped.
	ExitRetention time.Duration
	// DefaultCols and DefaultRows apply when pty.start carries no dimensions.
	DefaultCols int
	DefaultRows int
}

func (c Config) withDefaults() Config {
	if c.RingBytes <= 0 {
		c.RingBytes = DefaultRingBytes
	}
	if c.ExitRetention <= 0 {
		c.ExitRetention = DefaultExitRetention
	}
	if c.DefaultCols <= 0 {
		c.DefaultCols = DefaultCols
	}
	if c.DefaultRows <= 0 {
		c.DefaultRows = DefaultRows
	}
	return c
}

// Registry owns every live session. The registry table has its own lock;
// process state and ring of each session are guarded by the session's lock.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*liveSession
	closed   bool

	planner LaunchPlanner
	reducer StatusReducer
	hooks   Hooks
	cfg     Config
	log     *slog.Logger
}

// NewRegistry creates an empty registry. reducer may be nil when no status
// projection is wired. Hook calls run while the session lock is held, so the
// order events reach the stream always matches the order the transitions
// happened in.
func NewRegistry(planner LaunchPlanner, reducer StatusReducer, hooks Hooks, cfg Config) *Registry {
	return &Registry{
		sessions: make(map[string]*liveSession),
		planner:  planner,
		reducer:  reducer,
		hooks:    hooks,
		cfg:      cfg.withDefaults(),
		log:      slog.With("component", "session-registry"),
	}
}

type liveSession struct {
	id string

	mu         sync.Mutex
	ring       *Ring
	ptmx       *os.File
	cmd        *exec.Cmd
	live       bool
	starting   bool
	removed    bool
	controller *models.Controller
	lastExit   *models.ExitStatus
	status     models.RuntimeStatus
	startedAt  time.Time
	attached   map[string]OutputSink
	eventSubs  map[string]EventSink
	inputCh    chan []byte
	done       chan struct{}

	retireTimer *time.Timer
}

// Start spawns the session process, or returns the existing session when one
// is already live (recoveredDuplicateStart). A session record whose process
// exited is respawned in place so its cursor stream continues.
func (r *Registry) Start(req StartRequest) (StartResult, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return StartResult{}, ErrShuttingDown
	}
	sess, ok := r.sessions[req.SessionID]
	if !ok {
		sess = &liveSession{
			id:        req.SessionID,
			ring:      NewRing(r.cfg.RingBytes),
			attached:  make(map[string]OutputSink),
			eventSubs: make(map[string]EventSink),
		}
		r.sessions[req.SessionID] = sess
	}
	r.mu.Unlock()

	sess.mu.Lock()
	if sess.live || sess.starting {
		sess.mu.Unlock()
		return StartResult{SessionID: req.SessionID, RecoveredDuplicateStart: true}, nil
	}
	if sess.retireTimer != nil {
		sess.retireTimer.Stop()
		sess.retireTimer = nil
	}
	sess.starting = true
	sess.mu.Unlock()

	res, err := r.spawn(sess, req)
	if err != nil {
		sess.mu.Lock()
		sess.starting = false
		wasLive := sess.live
		sess.mu.Unlock()
		if !wasLive {
			// A failed first start leaves no registered session behind.
			r.mu.Lock()
			if cur, ok := r.sessions[req.SessionID]; ok && cur == sess && cur.ring.Latest() == 0 {
				delete(r.sessions, req.SessionID)
			}
			r.mu.Unlock()
		}
		return StartResult{}, err
	}
	return res, nil
}

func (r *Registry) spawn(sess *liveSession, req StartRequest) (StartResult, error) {
	spec, err := r.planner.Plan(req.AgentType, req.AdapterState, req.Cwd)
	if err != nil {
		return StartResult{}, fmt.Errorf("plan launch for %s: %w", req.SessionID, err)
	}

	cols := req.InitialCols
	if cols <= 0 {
		cols = spec.InitialCols
	}
	if cols <= 0 {
		cols = r.cfg.DefaultCols
	}
	rows := req.InitialRows
	if rows <= 0 {
		rows = spec.InitialRows
	}
	if rows <= 0 {
		rows = r.cfg.DefaultRows
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Cwd
	if cmd.Dir == "" {
		cmd.Dir = req.Cwd
	}
	cmd.Env = buildEnv(spec.Env, cols, rows, spec.TerminalFg, spec.TerminalBg)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return StartResult{}, fmt.Errorf("spawn %s: %w", spec.Command, err)
	}

	sess.mu.Lock()
	if sess.removed {
		sess.mu.Unlock()
		_ = cmd.Process.Kill()
		_ = ptmx.Close()
		return StartResult{}, fmt.Errorf("%w: session %s was removed during start", ErrCancelled, req.SessionID)
	}
	sess.ptmx = ptmx
	sess.cmd = cmd
	sess.live = true
	sess.starting = false
	sess.lastExit = nil
	sess.status = models.RuntimeRunning
	sess.startedAt = time.Now().UTC()
	sess.inputCh = make(chan []byte, inputQueueDepth)
	sess.done = make(chan struct{})
	inputCh := sess.inputCh
	done := sess.done
	r.hooks.SessionStarted(req.SessionID, models.RuntimeRunning)
	sess.mu.Unlock()

	r.log.Info("Session started",
		"session_id", req.SessionID, "command", spec.Command, "pid", cmd.Process.Pid)

	readerDone := make(chan struct{})
	go r.readLoop(sess, ptmx, readerDone)
	go writeLoop(sess.id, ptmx, inputCh, done)
	go r.waitLoop(sess, cmd, ptmx, inputCh, readerDone)

	return StartResult{SessionID: req.SessionID}, nil
}

// readLoop pumps PTY output into the ring and broadcasts each chunk with its
// end cursor. Read errors end the loop; EIO is how a PTY reports the child
// side closing once its buffered output is drained. readerDone tells waitLoop
// the last chunk has been delivered.
func (r *Registry) readLoop(sess *liveSession, ptmx *os.File, readerDone chan<- struct{}) {
	defer close(readerDone)

	buf := make([]byte, 4096)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			sess.mu.Lock()
			cur := sess.ring.Append(chunk)
			sinks := snapshotOutputs(sess.attached)
			r.hooks.OutputObserved(sess.id, cur, chunk)
			sess.mu.Unlock()

			for _, sink := range sinks {
				sink.SessionOutput(sess.id, cur, chunk)
			}
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, syscall.EIO) {
				r.log.Warn("PTY read error", "session_id", sess.id, "error", err)
			}
			return
		}
	}
}

// writeLoop forwards queued input bytes to the PTY in arrival order.
func writeLoop(id string, ptmx *os.File, inputCh <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case data, ok := <-inputCh:
			if !ok {
				return
			}
			if _, err := ptmx.Write(data); err != nil {
				slog.Warn("PTY write error", "session_id", id, "error", err)
				return
			}
		case <-done:
			return
		}
	}
}

// waitLoop captures the process exit, clears the input queue, notifies
// subscribers, and schedules the record's retirement after the grace window.
// The PTY can still hold output the child wrote right before exiting, so the
// exit is not recorded until the reader has drained it: every output chunk
// reaches sinks and the stream ahead of the exit notification.
func (r *Registry) waitLoop(sess *liveSession, cmd *exec.Cmd, ptmx *os.File, inputCh chan []byte, readerDone <-chan struct{}) {
	err := cmd.Wait()
	exit := exitStatus(cmd, err)
	<-readerDone
	_ = ptmx.Close()

	sess.mu.Lock()
	sess.live = false
	sess.lastExit = &exit
	sess.status = models.RuntimeExited
	close(sess.done)
	drain(inputCh)
	outputs := snapshotOutputs(sess.attached)
	eventSubs := snapshotEvents(sess.eventSubs)
	removed := sess.removed
	if !removed {
		sess.retireTimer = time.AfterFunc(r.cfg.ExitRetention, func() { r.retire(sess) })
	}
	r.hooks.SessionExited(sess.id, exit)
	sess.mu.Unlock()

	r.log.Info("Session exited", "session_id", sess.id, "exit", exit)
	for _, sink := range outputs {
		sink.SessionExit(sess.id, exit)
	}
	for _, sink := range eventSubs {
		sink.SessionEvent(sess.id, "session-exit", "", "", "", &exit)
	}
}

// retire drops an exited session record once its grace window lapses.
func (r *Registry) retire(sess *liveSession) {
	sess.mu.Lock()
	if sess.live || sess.starting {
		sess.mu.Unlock()
		return
	}
	sess.mu.Unlock()

	r.mu.Lock()
	if cur, ok := r.sessions[sess.id]; ok && cur == sess {
		delete(r.sessions, sess.id)
	}
	r.mu.Unlock()
}

func (r *Registry) lookup(sessionID string) (*liveSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return sess, nil
}

// IsLive reports whether a session with the id has a running process.
func (r *Registry) IsLive(sessionID string) bool {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.live
}

// Input forwards raw bytes to the session's stdin. Input for a dead process
// is dropped with ErrNotLive; callers without a command id ignore the error.
func (r *Registry) Input(sessionID string, data []byte) error {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.live {
		return ErrNotLive
	}
	select {
	case sess.inputCh <- data:
		return nil
	default:
		return fmt.Errorf("input queue full for session %s", sessionID)
	}
}

// Resize changes the PTY window size. Last resize wins.
func (r *Registry) Resize(sessionID string, cols, rows int) error {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.live {
		return ErrNotLive
	}
	return pty.Setsize(sess.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Signal delivers a control signal: interrupt → SIGINT, terminate → SIGTERM,
// eof → EOT on the terminal line (the PTY equivalent of closing stdin).
func (r *Registry) Signal(sessionID string, sig Signal) error {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.live {
		return ErrNotLive
	}
	switch sig {
	case SignalInterrupt:
		return sess.cmd.Process.Signal(syscall.SIGINT)
	case SignalTerminate:
		return sess.cmd.Process.Signal(syscall.SIGTERM)
	case SignalEOF:
		_, err := sess.ptmx.Write([]byte{0x04})
		return err
	}
	return fmt.Errorf("unknown signal %q", sig)
}

// Respond writes text to the session as if typed, with a trailing carriage
// return. Returns the number of bytes sent.
func (r *Registry) Respond(sessionID, text string) (int, error) {
	data := append([]byte(text), '\r')
	if err := r.Input(sessionID, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Interrupt sends SIGINT to the session process.
func (r *Registry) Interrupt(sessionID string) error {
	return r.Signal(sessionID, SignalInterrupt)
}

// Attach registers an output sink for the connection and replays retained
// output past sinceCursor. Replay is delivered before any new output: the
// ring only advances under the session lock held here.
func (r *Registry) Attach(connID, sessionID string, sinceCursor *int64, sink OutputSink) (AttachResult, error) {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return AttachResult{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.attached[connID] = sink

	res := AttachResult{LatestCursor: sess.ring.Latest()}
	if sinceCursor != nil {
		chunk, end, truncated := sess.ring.ReadSince(*sinceCursor)
		res.Truncated = truncated
		if len(chunk) > 0 {
			sink.SessionOutput(sessionID, end, chunk)
		}
	}
	return res, nil
}

// Detach removes the connection's output sink.
func (r *Registry) Detach(connID, sessionID string) error {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	delete(sess.attached, connID)
	return nil
}

// SubscribeEvents registers an event sink for session lifecycle events.
func (r *Registry) SubscribeEvents(connID, sessionID string, sink EventSink) error {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.eventSubs[connID] = sink
	return nil
}

// UnsubscribeEvents removes the connection's event sink.
func (r *Registry) UnsubscribeEvents(connID, sessionID string) error {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	delete(sess.eventSubs, connID)
	return nil
}

// DetachAll removes every sink the connection registered, across sessions.
// Called on connection close; claims persist.
func (r *Registry) DetachAll(connID string) {
	r.mu.Lock()
	sessions := make([]*liveSession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		delete(sess.attached, connID)
		delete(sess.eventSubs, connID)
		sess.mu.Unlock()
	}
}

// Close terminates the session process and records its exit. The record and
// ring stay attachable for the exit retention window.
func (r *Registry) Close(sessionID string) error {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if !sess.live {
		sess.mu.Unlock()
		return nil
	}
	proc := sess.cmd.Process
	done := sess.done
	sess.mu.Unlock()

	_ = proc.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = proc.Kill()
		<-done
	}
	return nil
}

// Remove closes the session if live and drops the record immediately. A
// pty.start in flight for the same id fails with ErrCancelled.
func (r *Registry) Remove(sessionID string) error {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	sess.removed = true
	if sess.retireTimer != nil {
		sess.retireTimer.Stop()
	}
	wasLive := sess.live
	sess.mu.Unlock()

	if wasLive {
		if err := r.Close(sessionID); err != nil {
			return err
		}
	}

	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	return nil
}

// Claim acquires exclusive control of the session. A different active
// controller is a conflict unless takeover is set, in which case the claim is
// replaced atomically and the emitted event carries the previous controller.
func (r *Registry) Claim(sessionID, controllerID string, controllerType models.ControllerType, label, reason string, takeover bool) (ClaimResult, error) {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return ClaimResult{}, err
	}

	sess.mu.Lock()
	prev := sess.controller
	if prev != nil && prev.ControllerID != controllerID && !takeover {
		sess.mu.Unlock()
		return ClaimResult{}, fmt.Errorf("%w: held by %s", ErrConflict, prev.ControllerID)
	}
	controller := models.Controller{
		ControllerID:    controllerID,
		ControllerType:  controllerType,
		ControllerLabel: label,
		ClaimedAt:       time.Now().UTC(),
	}
	sess.controller = &controller

	action := "claimed"
	var previous *models.Controller
	if prev != nil && prev.ControllerID != controllerID {
		action = "taken-over"
		previous = prev
	}
	r.hooks.ControlChanged(sessionID, action, &controller, previous, reason)
	sess.mu.Unlock()

	return ClaimResult{SessionID: sessionID, Action: action, Controller: controller}, nil
}

// Release clears the session's controller claim.
func (r *Registry) Release(sessionID string) error {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	had := sess.controller != nil
	sess.controller = nil
	if had {
		r.hooks.ControlChanged(sessionID, "released", nil, nil, "")
	}
	sess.mu.Unlock()
	return nil
}

// IngestTelemetry runs the status reducer over one telemetry summary and, on
// a non-nil projection, persists it and emits the session-status event. A
// projection carrying an attention reason also raises an attention-required
// lifecycle event for event subscribers.
func (r *Registry) IngestTelemetry(input TelemetryInput) error {
	if r.reducer == nil {
		return nil
	}
	sess, err := r.lookup(input.SessionID)
	if err != nil {
		return err
	}

	model := r.reducer.Project(input)
	if model == nil {
		return nil
	}

	sess.mu.Lock()
	sess.status = model.RuntimeStatus
	eventSubs := snapshotEvents(sess.eventSubs)
	r.hooks.StatusModelApplied(input.SessionID, *model)
	sess.mu.Unlock()

	if model.AttentionReason != "" {
		for _, sink := range eventSubs {
			sink.SessionEvent(input.SessionID, "attention-required", "", model.DetailText, model.AttentionReason, nil)
		}
	}
	return nil
}

// NotifyEvent raises a notify or turn-completed lifecycle event for the
// session's event subscribers.
func (r *Registry) NotifyEvent(sessionID, eventType, title, message string) error {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	eventSubs := snapshotEvents(sess.eventSubs)
	sess.mu.Unlock()

	for _, sink := range eventSubs {
		sink.SessionEvent(sessionID, eventType, title, message, "", nil)
	}
	return nil
}

// List returns every session's read-only view, sorted by id. liveOnly keeps
// only sessions with a running process.
func (r *Registry) List(liveOnly bool) []models.SessionInfo {
	r.mu.Lock()
	sessions := make([]*liveSession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	out := make([]models.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		info := sess.info()
		if liveOnly && !info.Live {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Status returns one session's read-only view.
func (r *Registry) Status(sessionID string) (models.SessionInfo, error) {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return models.SessionInfo{}, err
	}
	return sess.info(), nil
}

func (s *liveSession) info() models.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SessionInfo{
		SessionID:     s.id,
		Live:          s.live,
		RuntimeStatus: s.status,
		Controller:    s.controller,
		LatestCursor:  s.ring.Latest(),
		LastExit:      s.lastExit,
		StartedAt:     s.startedAt,
	}
}

// Shutdown terminates every live session with SIGTERM, waits up to grace,
// then kills the stragglers. New starts are refused.
func (r *Registry) Shutdown(grace time.Duration) {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*liveSession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	var waits []<-chan struct{}
	for _, sess := range sessions {
		sess.mu.Lock()
		if sess.live {
			_ = sess.cmd.Process.Signal(syscall.SIGTERM)
			waits = append(waits, sess.done)
		}
		sess.mu.Unlock()
	}

	deadline := time.After(grace)
	for _, done := range waits {
		select {
		case <-done:
		case <-deadline:
			r.killRemaining(sessions)
			return
		}
	}
}

func (r *Registry) killRemaining(sessions []*liveSession) {
	for _, sess := range sessions {
		sess.mu.Lock()
		if sess.live {
			_ = sess.cmd.Process.Kill()
		}
		sess.mu.Unlock()
	}
}

func snapshotOutputs(m map[string]OutputSink) []OutputSink {
	out := make([]OutputSink, 0, len(m))
	for _, sink := range m {
		out = append(out, sink)
	}
	return out
}

func snapshotEvents(m map[string]EventSink) []EventSink {
	out := make([]EventSink, 0, len(m))
	for _, sink := range m {
		out = append(out, sink)
	}
	return out
}

func drain(ch chan []byte) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func buildEnv(extra map[string]string, cols, rows int, fg, bg string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	env = append(env, "TERM=xterm-256color")
	env = append(env, fmt.Sprintf("COLUMNS=%d", cols), fmt.Sprintf("LINES=%d", rows))
	if fg != "" {
		env = append(env, "HARNESS_TERMINAL_FG="+fg)
	}
	if bg != "" {
		env = append(env, "HARNESS_TERMINAL_BG="+bg)
	}
	return env
}

// exitStatus converts a Wait result into the wire exit contract: exactly one
// of code and signal is set.
func exitStatus(cmd *exec.Cmd, err error) models.ExitStatus {
	if err == nil {
		code := 0
		return models.ExitStatus{Code: &code}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			name := signalName(ws.Signal())
			return models.ExitStatus{Signal: &name}
		}
		code := exitErr.ExitCode()
		if code < 0 {
			code = 1
		}
		return models.ExitStatus{Code: &code}
	}
	code := 1
	return models.ExitStatus{Code: &code}
}

var signalNames = map[syscall.Signal]string{
	syscall.SIGHUP:  "SIGHUP",
	syscall.SIGINT:  "SIGINT",
	syscall.SIGQUIT: "SIGQUIT",
	syscall.SIGABRT: "SIGABRT",
	syscall.SIGKILL: "SIGKILL",
	syscall.SIGSEGV: "SIGSEGV",
	syscall.SIGPIPE: "SIGPIPE",
	syscall.SIGALRM: "SIGALRM",
	syscall.SIGTERM: "SIGTERM",
}

func signalName(sig syscall.Signal) string {
	if name, ok := signalNames[sig]; ok {
		return name
	}
	return fmt.Sprintf("SIG%d", int(sig))
}
