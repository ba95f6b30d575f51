// Package pipeline keeps the segmented text and phonetic renderings of a
// document in step with its source text.
//
// One goroutine, the loop, owns the document. Public methods, debounce timers
// and completed service calls all post closures to it, so state transitions
// never race. Readers get immutable snapshots.
//
// Every service request is tagged with a per-stage sequence number. A response
// whose number is no longer current for its stage is discarded, so a slow
// response can never overwrite newer state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"kvpedit/internal/debounce"
	"kvpedit/internal/linebreak"
	"kvpedit/internal/logging"
	"kvpedit/internal/metrics"
	"kvpedit/internal/prefs"
	"kvpedit/internal/render"
	"kvpedit/internal/service"
)

// DefaultQuietPeriod is how long input must stay unchanged before a service
// request is issued.
const DefaultQuietPeriod = 120 * time.Millisecond

var (
	// ErrNotRunning is returned by calls made before Start.
	ErrNotRunning = errors.New("pipeline not running")
	// ErrStopped is returned by calls made after Stop.
	ErrStopped = errors.New("pipeline stopped")
	// ErrSuperseded is returned by Refresh when newer input overtook it.
	ErrSuperseded = errors.New("superseded by newer input")
)

const (
	keySegment     = "segment"
	keyPhoneticize = "phoneticize"
)

// Options configures an Orchestrator.
type Options struct {
	// QuietPeriod defaults to DefaultQuietPeriod when zero.
	QuietPeriod time.Duration
	Logger      *logging.Logger
	Metrics     *metrics.Pipeline
	// Now defaults to time.Now.
	Now func() time.Time
}

// stage tracks the requests of one pipeline stage.
type stage struct {
	name     string
	seq      uint64 // latest issued or invalidated request
	gen      uint64 // latest scheduled timer
	inflight int
}

// Orchestrator runs the source → segmented → rendering pipeline.
type Orchestrator struct {
	svc     service.Service
	prefs   *prefs.Store
	log     *logging.Logger
	metrics *metrics.Pipeline
	now     func() time.Time
	sched   *debounce.Scheduler
	quiet   atomic.Int64

	ops     chan func()
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	stopped atomic.Bool
	calls   sync.WaitGroup

	// Owned by the loop.
	doc  Document
	seg  stage
	phon stage

	snap   atomic.Pointer[Snapshot]
	subMu  sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
}

// New creates an Orchestrator with default configuration and an empty
// document. Call Restore to load the persisted session and Start to run it.
func New(svc service.Service, store *prefs.Store, opts Options) *Orchestrator {
	if store == nil {
		store = prefs.New(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	sessionID := uuid.NewString()
	o := &Orchestrator{
		svc:     svc,
		prefs:   store,
		log:     opts.Logger.WithComponent("pipeline").WithSession(sessionID),
		metrics: opts.Metrics,
		now:     opts.Now,
		sched:   debounce.New(),
		ops:     make(chan func(), 64),
		done:    make(chan struct{}),
		seg:     stage{name: keySegment},
		phon:    stage{name: keyPhoneticize},
		subs:    make(map[int]chan Snapshot),
	}
	o.SetQuietPeriod(opts.QuietPeriod)

	d := prefs.Defaults()
	o.doc = Document{
		SessionID:    sessionID,
		Stage:        Empty,
		Variant:      d.Variant,
		Granularity:  d.Granularity,
		SanskritMode: d.SanskritMode,
		Anusvara:     d.Anusvara,
		UpdatedAt:    o.now(),
	}
	o.publish()
	return o
}

// SetQuietPeriod changes the debounce delay for timers armed from now on.
func (o *Orchestrator) SetQuietPeriod(d time.Duration) {
	if d <= 0 {
		d = DefaultQuietPeriod
	}
	o.quiet.Store(int64(d))
}

// QuietPeriod returns the current debounce delay.
func (o *Orchestrator) QuietPeriod() time.Duration {
	return time.Duration(o.quiet.Load())
}

// Restore loads the persisted session: configuration, source text (or the
// built-in sample) and the last segmented text. It issues no service calls;
// follow it with Refresh to bring the rendering up to date. On a running
// orchestrator pending timers and in-flight requests are invalidated first.
func (o *Orchestrator) Restore() error {
	if !o.started.Load() {
		o.restore()
		return nil
	}
	return o.do(func() {
		o.cancelTimer(&o.seg)
		o.cancelTimer(&o.phon)
		o.seg.seq++
		o.phon.seq++
		o.restore()
	})
}

func (o *Orchestrator) restore() {
	p := o.prefs.Load()
	o.doc.SourceText = p.SourceText
	o.doc.SegmentedText = p.SegmentedText
	o.doc.Variant = p.Variant
	o.doc.Granularity = p.Granularity
	o.doc.SanskritMode = p.SanskritMode
	o.doc.Anusvara = p.Anusvara
	o.doc.Raw = nil
	o.doc.Rendering = nil
	if isBlank(o.doc.SourceText) {
		o.doc.Stage = Empty
		o.doc.SegmentedText = ""
	} else {
		o.doc.Stage = Pending
	}
	o.doc.UpdatedAt = o.now()
	o.publish()
	o.log.Debug("session restored", "stage", o.doc.Stage, "variant", o.doc.Variant)
}

// Start runs the loop until ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	if !o.started.CompareAndSwap(false, true) {
		return
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	go o.loop()
}

// Stop cancels pending timers and in-flight calls and waits for the loop to
// exit.
func (o *Orchestrator) Stop() {
	if !o.started.Load() || !o.stopped.CompareAndSwap(false, true) {
		return
	}
	o.cancel()
	<-o.done
	o.sched.Stop()
	o.calls.Wait()

	o.subMu.Lock()
	for id, ch := range o.subs {
		close(ch)
		delete(o.subs, id)
	}
	o.subMu.Unlock()
}

func (o *Orchestrator) loop() {
	defer close(o.done)
	for {
		select {
		case op := <-o.ops:
			o.run(op)
		case <-o.ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) run(op func()) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("pipeline operation panicked", "panic", r)
		}
	}()
	op()
}

// post queues fn on the loop. It reports false once the loop has exited.
func (o *Orchestrator) post(fn func()) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.ops <- fn:
		return true
	case <-o.done:
		return false
	}
}

// do runs fn on the loop and waits for it to finish.
func (o *Orchestrator) do(fn func()) error {
	if !o.started.Load() {
		return ErrNotRunning
	}
	finished := make(chan struct{})
	if !o.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-o.done:
		return ErrStopped
	}
}

// SetSource replaces the source text. Blank text empties the document at
// once; anything else (re)schedules segmentation.
func (o *Orchestrator) SetSource(text string) error {
	return o.do(func() {
		if text == o.doc.SourceText && o.doc.Stage != Empty {
			return
		}
		o.persist("source text", o.prefs.SetSourceText(text))
		o.doc.SourceText = text
		if isBlank(text) {
			o.clear()
		} else {
			o.resegment()
		}
		o.touch()
	})
}

// SetSegmented replaces the segmented text directly, as when the user edits
// the segmentation by hand, and schedules phoneticization.
func (o *Orchestrator) SetSegmented(text string) error {
	return o.do(func() {
		if text == o.doc.SegmentedText || o.doc.Stage == Empty {
			return
		}
		o.persist("segmented text", o.prefs.SetSegmentedText(text))
		o.replaceSegmented(text)
		if isBlank(text) {
			o.doc.Raw = nil
			o.doc.Rendering = nil
		} else {
			o.schedule(&o.phon, o.issuePhoneticize)
		}
		o.doc.Stage = Segmented
		o.touch()
	})
}

// SetVariant selects the display variant. When raw results exist the
// rendering is recomputed from them without a service call.
func (o *Orchestrator) SetVariant(v string) error {
	if err := prefs.Validate("variant", v); err != nil {
		return err
	}
	return o.do(func() {
		o.persist("variant", o.prefs.SetVariant(v))
		o.doc.Variant = v
		if o.doc.Raw != nil {
			o.rerender()
		}
		o.touch()
	})
}

// SetGranularity changes the segmentation granularity.
func (o *Orchestrator) SetGranularity(g prefs.Granularity) error {
	if err := prefs.Validate("granularity", string(g)); err != nil {
		return err
	}
	return o.do(func() {
		o.persist("granularity", o.prefs.SetGranularity(g))
		o.doc.Granularity = g
		o.inputsChanged()
	})
}

// SetSanskritMode changes how the service treats Sanskrit syllables.
func (o *Orchestrator) SetSanskritMode(mode string) error {
	if err := prefs.Validate("sanskrit_mode", mode); err != nil {
		return err
	}
	return o.do(func() {
		o.persist("sanskrit mode", o.prefs.SetSanskritMode(mode))
		o.doc.SanskritMode = mode
		o.inputsChanged()
	})
}

// SetAnusvara changes the anusvara glyph used by the service.
func (o *Orchestrator) SetAnusvara(glyph string) error {
	if err := prefs.Validate("anusvara", glyph); err != nil {
		return err
	}
	return o.do(func() {
		o.persist("anusvara", o.prefs.SetAnusvara(glyph))
		o.doc.Anusvara = glyph
		o.inputsChanged()
	})
}

// inputsChanged reschedules segmentation after a service parameter changed.
func (o *Orchestrator) inputsChanged() {
	if o.doc.Stage != Empty {
		o.resegment()
	}
	o.touch()
}

// resegment arms a fresh segmentation timer. Responses to requests issued
// before it, and the phoneticization chained to them, no longer match the
// document and are invalidated at once rather than when the timer fires.
func (o *Orchestrator) resegment() {
	o.seg.seq++
	o.phon.seq++
	o.cancelTimer(&o.phon)
	o.doc.Stage = Pending
	o.schedule(&o.seg, o.issueSegment)
}

// Refresh runs segmentation to completion and then phoneticization to
// completion, bypassing the quiet period. Timers armed before the call are
// cancelled. It returns the first service error; the document keeps its
// previous derived state in that case.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	var (
		req   service.SegmentRequest
		seq   uint64
		empty bool
	)
	err := o.do(func() {
		o.cancelTimer(&o.seg)
		o.cancelTimer(&o.phon)
		if isBlank(o.doc.SourceText) {
			o.clear()
			o.touch()
			empty = true
			return
		}
		o.doc.Stage = Pending
		req, seq = o.beginSegment()
		o.touch()
	})
	if err != nil || empty {
		return err
	}

	res, callErr := o.callSegment(ctx, seq, req)
	var applied bool
	if err := o.do(func() { applied = o.onSegment(seq, req.Text, res, callErr, false) }); err != nil {
		return err
	}
	if callErr != nil {
		return callErr
	}
	if !applied {
		return ErrSuperseded
	}

	var (
		preq service.PhoneticizeRequest
		pseq uint64
		skip bool
	)
	if err := o.do(func() {
		if isBlank(o.doc.SegmentedText) {
			skip = true
			return
		}
		preq, pseq = o.beginPhoneticize()
		o.touch()
	}); err != nil || skip {
		return err
	}

	pres, callErr := o.callPhoneticize(ctx, pseq, preq)
	if err := o.do(func() { applied = o.onPhoneticize(pseq, pres, callErr) }); err != nil {
		return err
	}
	if callErr != nil {
		return callErr
	}
	if !applied {
		return ErrSuperseded
	}
	return nil
}

// Snapshot returns the latest published state.
func (o *Orchestrator) Snapshot() Snapshot {
	return *o.snap.Load()
}

// Display returns the selected variant of the current rendering.
func (o *Orchestrator) Display() string {
	return o.Snapshot().Display()
}

// Subscribe returns a channel that always holds the newest snapshot not yet
// received. A slow reader skips intermediate snapshots. The channel is closed
// by the returned cancel func or by Stop.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	o.subMu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = ch
	ch <- *o.snap.Load()
	o.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subMu.Lock()
			defer o.subMu.Unlock()
			if _, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(ch)
			}
		})
	}
}

func (o *Orchestrator) publish() {
	s := &Snapshot{
		Document: o.doc,
		Busy: o.seg.inflight > 0 || o.phon.inflight > 0 ||
			o.sched.Pending(keySegment) || o.sched.Pending(keyPhoneticize),
	}
	o.snap.Store(s)

	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- *s
	}
}

func (o *Orchestrator) touch() {
	o.doc.UpdatedAt = o.now()
	o.publish()
}

// persist swallows a preference write error after recording it.
func (o *Orchestrator) persist(what string, err error) {
	if err != nil {
		o.metrics.RecordPreferenceWriteError()
		o.log.Debug("preference not persisted", "option", what, "error", err)
	}
}

// clear moves the document to Empty and invalidates everything in flight.
func (o *Orchestrator) clear() {
	o.cancelTimer(&o.seg)
	o.cancelTimer(&o.phon)
	o.seg.seq++
	o.phon.seq++
	if o.doc.SegmentedText != "" {
		o.persist("segmented text", o.prefs.SetSegmentedText(""))
	}
	o.doc.SegmentedText = ""
	o.doc.Raw = nil
	o.doc.Rendering = nil
	o.doc.Stage = Empty
}

// replaceSegmented stores new segmented text. Any phoneticization in flight
// was computed from the old text and is invalidated.
func (o *Orchestrator) replaceSegmented(text string) {
	if text != o.doc.SegmentedText {
		o.phon.seq++
		o.cancelTimer(&o.phon)
	}
	o.doc.SegmentedText = text
}

func (o *Orchestrator) schedule(st *stage, issue func()) {
	st.gen++
	gen := st.gen
	o.sched.Schedule(st.name, o.QuietPeriod(), func() {
		o.post(func() {
			if gen == st.gen {
				issue()
			}
		})
	})
}

func (o *Orchestrator) cancelTimer(st *stage) {
	st.gen++
	o.sched.Cancel(st.name)
}

func (o *Orchestrator) beginSegment() (service.SegmentRequest, uint64) {
	o.seg.seq++
	o.seg.inflight++
	o.metrics.RecordRequest(keySegment)
	return service.SegmentRequest{
		Text:         o.doc.SourceText,
		Granularity:  string(o.doc.Granularity),
		SanskritMode: o.doc.SanskritMode,
		Anusvara:     o.doc.Anusvara,
	}, o.seg.seq
}

func (o *Orchestrator) beginPhoneticize() (service.PhoneticizeRequest, uint64) {
	o.phon.seq++
	o.phon.inflight++
	o.metrics.RecordRequest(keyPhoneticize)
	return service.PhoneticizeRequest{
		Text:         o.doc.SegmentedText,
		SanskritMode: o.doc.SanskritMode,
		Anusvara:     o.doc.Anusvara,
	}, o.phon.seq
}

// issueSegment runs on the loop when the segmentation timer fires.
func (o *Orchestrator) issueSegment() {
	if isBlank(o.doc.SourceText) {
		return
	}
	req, seq := o.beginSegment()
	o.publish()
	o.async(func(ctx context.Context) {
		res, err := o.callSegment(ctx, seq, req)
		o.post(func() { o.onSegment(seq, req.Text, res, err, true) })
	})
}

// issuePhoneticize runs on the loop when the phoneticization timer fires.
func (o *Orchestrator) issuePhoneticize() {
	if isBlank(o.doc.SegmentedText) {
		return
	}
	req, seq := o.beginPhoneticize()
	o.publish()
	o.async(func(ctx context.Context) {
		res, err := o.callPhoneticize(ctx, seq, req)
		o.post(func() { o.onPhoneticize(seq, res, err) })
	})
}

func (o *Orchestrator) async(fn func(ctx context.Context)) {
	o.calls.Add(1)
	go func() {
		defer o.calls.Done()
		fn(o.ctx)
	}()
}

func (o *Orchestrator) callSegment(ctx context.Context, seq uint64, req service.SegmentRequest) (res *service.SegmentResult, err error) {
	err = o.call(ctx, keySegment, seq, func(ctx context.Context) error {
		var err error
		res, err = o.svc.Segment(ctx, req)
		if err == nil && res == nil {
			err = fmt.Errorf("%w: empty result", service.ErrMalformed)
		}
		return err
	})
	return res, err
}

func (o *Orchestrator) callPhoneticize(ctx context.Context, seq uint64, req service.PhoneticizeRequest) (res *service.PhoneticResult, err error) {
	err = o.call(ctx, keyPhoneticize, seq, func(ctx context.Context) error {
		var err error
		res, err = o.svc.Phoneticize(ctx, req)
		if err == nil && res == nil {
			err = fmt.Errorf("%w: empty result", service.ErrMalformed)
		}
		return err
	})
	return res, err
}

// call runs one service request off the loop, tagging it with a request id and
// converting a panic in the service into an error.
func (o *Orchestrator) call(ctx context.Context, stageName string, seq uint64, fn func(context.Context) error) (err error) {
	requestID := uuid.NewString()
	ctx = logging.ContextWithRequestID(ctx, requestID)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", service.ErrUnavailable, r)
		}
		o.metrics.RecordResponse(time.Since(start), err)
		if err != nil {
			o.log.WithRequestID(requestID).Warn("service request failed",
				"stage", stageName, "seq", seq, "error", err)
		}
	}()
	o.log.WithRequestID(requestID).Debug("service request issued", "stage", stageName, "seq", seq)
	return fn(ctx)
}

// onSegment applies a segmentation response. It reports whether the
// response was current.
func (o *Orchestrator) onSegment(seq uint64, source string, res *service.SegmentResult, err error, chain bool) bool {
	o.seg.inflight--
	defer o.publish()

	if seq != o.seg.seq {
		o.metrics.RecordStale()
		o.log.Debug("discarding stale response", "stage", keySegment, "seq", seq, "latest", o.seg.seq)
		return false
	}
	if err != nil {
		return true
	}

	aligned := linebreak.Align(source, linebreak.TrimLineIndent(res.Segmented), res.Romanized, res.Phonetic)
	segmented := aligned[0]
	changed := segmented != o.doc.SegmentedText

	o.persist("segmented text", o.prefs.SetSegmentedText(segmented))
	o.replaceSegmented(segmented)
	if isBlank(segmented) {
		o.doc.Raw = nil
		o.doc.Rendering = nil
		o.doc.Stage = Segmented
		o.doc.UpdatedAt = o.now()
		return true
	}
	o.doc.Raw = &RawPhonetics{Romanized: aligned[1], Phonetic: aligned[2]}
	o.rerender()

	switch {
	case chain && changed:
		o.doc.Stage = Segmented
		o.schedule(&o.phon, o.issuePhoneticize)
	case chain:
		// The raw pair already reflects the unchanged segmented text.
		o.doc.Stage = Phoneticized
	default:
		o.doc.Stage = Segmented
	}
	o.doc.UpdatedAt = o.now()
	return true
}

// onPhoneticize applies a phoneticization response.
func (o *Orchestrator) onPhoneticize(seq uint64, res *service.PhoneticResult, err error) bool {
	o.phon.inflight--
	defer o.publish()

	if seq != o.phon.seq {
		o.metrics.RecordStale()
		o.log.Debug("discarding stale response", "stage", keyPhoneticize, "seq", seq, "latest", o.phon.seq)
		return false
	}
	if err != nil {
		return true
	}

	aligned := linebreak.Align(o.doc.SegmentedText, res.Romanized, res.Phonetic)
	o.doc.Raw = &RawPhonetics{Romanized: aligned[0], Phonetic: aligned[1]}
	o.rerender()
	o.doc.Stage = Phoneticized
	o.doc.UpdatedAt = o.now()
	return true
}

// rerender replaces the rendering wholesale from the stored raw pair.
func (o *Orchestrator) rerender() {
	o.doc.Rendering = render.Render(o.doc.Raw.Romanized, o.doc.Raw.Phonetic)
	o.metrics.RecordRender()
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
