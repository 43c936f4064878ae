package pipeline

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PhantomInTheWire/gridsplit/pkg/compose"
	"github.com/PhantomInTheWire/gridsplit/pkg/logger"
	"github.com/PhantomInTheWire/gridsplit/pkg/profile"
	"github.com/PhantomInTheWire/gridsplit/pkg/raster"
	"github.com/PhantomInTheWire/gridsplit/pkg/split"
)

// Status of a run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Resolver returns the bytes of a named input. Missing inputs must be
// reported as ErrNotFound.
type Resolver interface {
	Resolve(ctx context.Context, ref string) ([]byte, error)
}

// Sink persists one output and returns where it was stored.
type Sink interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Ledger records run status.
type Ledger interface {
	SetStatus(ctx context.Context, runID string, status Status) error
	SetResult(ctx context.Context, runID string, locations []string) error
}

// ErrorRecorder is implemented by ledgers that can persist failure detail.
type ErrorRecorder interface {
	SetError(ctx context.Context, runID string, msg string) error
}

// ResultKey is the sink key of a tile: "{runID}/result-{tag}.jpg".
func ResultKey(runID string, tag split.Tag) string {
	return fmt.Sprintf("%s/result-%s.jpg", runID, tag)
}

// Result describes a finished run.
type Result struct {
	RunID  string
	Status Status
	// Locations are in TL, TR, BL, BR order.
	Locations []string
	Tiles     [4]*compose.Tile
}

// Orchestrator runs grid jobs for one profile.
type Orchestrator struct {
	profile  profile.GridProfile
	resolver Resolver
	sink     Sink
	ledger   Ledger
	workers  int
	log      *zap.SugaredLogger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLedger reports status transitions to l.
func WithLedger(l Ledger) Option {
	return func(o *Orchestrator) { o.ledger = l }
}

// WithWorkers bounds how many decode or compose tasks run at once.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithLogger sets the logger; the default is the "pipeline" component logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// New returns an Orchestrator producing tiles with p.
func New(p profile.GridProfile, resolver Resolver, sink Sink, opts ...Option) (*Orchestrator, error) {
	if resolver == nil || sink == nil {
		return nil, errors.New("resolver and sink must be set")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		profile:  p,
		resolver: resolver,
		sink:     sink,
		ledger:   nopLedger{},
		workers:  runtime.GOMAXPROCS(0),
		log:      logger.ComponentLogger("pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Profile returns the profile the orchestrator composes with.
func (o *Orchestrator) Profile() profile.GridProfile {
	return o.profile
}

// RunPositional runs the auto-split variant: refs[0] is main, refs[1:5] the
// headers and refs[5:9] the footers, both in TL, TR, BL, BR order.
func (o *Orchestrator) RunPositional(ctx context.Context, runID string, refs []string) (*Result, error) {
	return o.execute(ctx, runID, "positional", func() (SlotAssignment, error) {
		return Positional(refs)
	})
}

// RunAssigned runs the assigned variant. Every slot of a must be set; an
// incomplete assignment fails with ErrNotFound before any input is read.
func (o *Orchestrator) RunAssigned(ctx context.Context, runID string, a SlotAssignment) (*Result, error) {
	return o.execute(ctx, runID, "assigned", func() (SlotAssignment, error) {
		return a, a.Validate()
	})
}

func (o *Orchestrator) execute(ctx context.Context, runID, variant string, assign func() (SlotAssignment, error)) (*Result, error) {
	ctx = logger.WithJobID(ctx, runID)
	log := logger.FromContext(ctx, o.log).With(logger.FieldProfile, o.profile.Name, "variant", variant)
	start := time.Now()

	if err := o.ledger.SetStatus(ctx, runID, StatusProcessing); err != nil {
		return &Result{RunID: runID, Status: StatusFailed}, errors.Wrap(err, "mark run processing")
	}
	log.Infow("Run started")

	res, err := o.run(ctx, runID, log, assign)
	if err != nil {
		o.fail(ctx, runID, log, err)
		return &Result{RunID: runID, Status: StatusFailed}, err
	}

	if err := o.ledger.SetResult(ctx, runID, res.Locations); err != nil {
		err = errors.Wrap(err, "record result")
		o.fail(ctx, runID, log, err)
		return &Result{RunID: runID, Status: StatusFailed}, err
	}
	if err := o.ledger.SetStatus(ctx, runID, StatusCompleted); err != nil {
		err = errors.Wrap(err, "mark run completed")
		o.fail(ctx, runID, log, err)
		return &Result{RunID: runID, Status: StatusFailed}, err
	}
	res.Status = StatusCompleted

	log.Infow("Run completed",
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
		"locations", res.Locations)
	return res, nil
}

func (o *Orchestrator) fail(ctx context.Context, runID string, log *zap.SugaredLogger, cause error) {
	log.Errorw("Run failed", logger.FieldError, cause.Error(), "error_kind", Kind(cause))
	// The run context may already be cancelled; status must still land.
	bg := context.WithoutCancel(ctx)
	if rec, ok := o.ledger.(ErrorRecorder); ok {
		if err := rec.SetError(bg, runID, cause.Error()); err != nil {
			log.Warnw("Could not record run error", logger.FieldError, err.Error())
		}
	}
	if err := o.ledger.SetStatus(bg, runID, StatusFailed); err != nil {
		log.Warnw("Could not mark run failed", logger.FieldError, err.Error())
	}
}

func (o *Orchestrator) run(ctx context.Context, runID string, log *zap.SugaredLogger, assign func() (SlotAssignment, error)) (*Result, error) {
	a, err := assign()
	if err != nil {
		return nil, err
	}

	images, err := o.load(ctx, a)
	if err != nil {
		return nil, err
	}

	quadrants, err := o.profile.Policy().Split(images[SlotMain])
	if err != nil {
		return nil, errors.Wrap(err, "split main image")
	}
	log.Debugw("Main image split", "source", images[SlotMain].Bounds().Size().String())

	res := &Result{RunID: runID, Locations: make([]string, len(split.Tags))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, tag := range split.Tags {
		g.Go(func() error {
			tile, err := compose.Compose(tag, quadrants[tag], images[HeaderSlot(tag)], images[FooterSlot(tag)], o.profile)
			if err != nil {
				return err
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			key := ResultKey(runID, tag)
			loc, err := o.sink.Store(gctx, key, tile.JPEG, compose.ContentType)
			if err != nil {
				if errors.Is(err, ErrSinkWrite) {
					return errors.Wrapf(err, "store %s", key)
				}
				return errors.Wrapf(ErrSinkWrite, "store %s: %v", key, err)
			}
			log.Debugw("Tile stored", logger.FieldTag, tag.String(), logger.FieldKey, key, logger.FieldSize, len(tile.JPEG))
			res.Tiles[tag] = tile
			res.Locations[tag] = loc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// load resolves and decodes every slot concurrently.
func (o *Orchestrator) load(ctx context.Context, a SlotAssignment) (map[Slot]image.Image, error) {
	decoded := make([]image.Image, len(Slots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, s := range Slots {
		g.Go(func() error {
			data, err := o.resolver.Resolve(gctx, a[s])
			if err != nil {
				return errors.Wrapf(err, "resolve %s (%s)", s, a[s])
			}
			img, err := raster.Decode(data)
			if err != nil {
				return errors.Wrapf(err, "decode %s (%s)", s, a[s])
			}
			decoded[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	images := make(map[Slot]image.Image, len(Slots))
	for i, s := range Slots {
		images[s] = decoded[i]
	}
	return images, nil
}

type nopLedger struct{}

func (nopLedger) SetStatus(context.Context, string, Status) error   { return nil }
func (nopLedger) SetResult(context.Context, string, []string) error { return nil }
