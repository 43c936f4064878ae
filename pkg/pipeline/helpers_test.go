package pipeline

import (
	"context"
	"image/color"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/PhantomInTheWire/gridsplit/pkg/raster/rastertest"
)

type mapResolver struct {
	mu    sync.Mutex
	data  map[string][]byte
	calls int
}

func (r *mapResolver) Resolve(_ context.Context, ref string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	b, ok := r.data[ref]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, ref)
	}
	return b, nil
}

type memSink struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failOn  string
}

func newMemSink() *memSink {
	return &memSink{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memSink) Store(_ context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.failOn {
		return "", errors.New("bucket unavailable")
	}
	s.objects[key] = data
	s.types[key] = contentType
	return "mem://" + key, nil
}

func (s *memSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type recordingLedger struct {
	mu        sync.Mutex
	statuses  []Status
	locations []string
	errMsg    string
	failOn    Status
}

func (l *recordingLedger) SetStatus(_ context.Context, _ string, s Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s == l.failOn {
		return errors.New("ledger offline")
	}
	l.statuses = append(l.statuses, s)
	return nil
}

func (l *recordingLedger) SetResult(_ context.Context, _ string, locations []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locations = locations
	return nil
}

func (l *recordingLedger) SetError(_ context.Context, _ string, msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errMsg = msg
	return nil
}

// nineInputs returns a resolver holding a main image of the given size and
// distinct small header/footer images, plus their refs in positional order.
func nineInputs(t *testing.T, mainW, mainH int) (*mapResolver, []string) {
	t.Helper()
	r := &mapResolver{data: map[string][]byte{}}
	refs := make([]string, 0, len(Slots))
	for i, s := range Slots {
		ref := "raw/" + string(s) + ".png"
		if s == SlotMain {
			r.data[ref] = rastertest.PNG(t, rastertest.Gradient(mainW, mainH))
		} else {
			r.data[ref] = rastertest.SolidPNG(t, 40+i, 30, color.NRGBA{R: uint8(20 * i), G: 100, B: 200, A: 255})
		}
		refs = append(refs, ref)
	}
	return r, refs
}
