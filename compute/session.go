package compute

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/rs/zerolog/log"

	"github.com/openfluke/shuttle/detector"
)

// SessionOptions configures session creation. The zero value is usable.
type SessionOptions struct {
	// AppName and EngineName are informational only and may be empty; they
	// are carried into logs, not into the driver.
	AppName    string
	EngineName string

	// AdapterFilter selects an adapter whose name or backend contains the
	// substring (case-insensitive). Falls back to the SHUTTLE_ADAPTER env
	// variable when empty.
	AdapterFilter string

	// SkipProbe skips the capability pre-probe used to pick a power
	// preference.
	SkipProbe bool

	// WaitTimeout bounds DispatchHandle.Wait so a lost device surfaces an
	// error instead of hanging. Defaults to 2s.
	WaitTimeout time.Duration
}

// Session owns one live connection to the GPU: instance, adapter, logical
// device and its compute queue, plus the per-type pipeline cache and the
// buffer pool. Dependents are destroyed before the instance on Close.
//
// Host-side recording is intended to be single-threaded per session; the
// pipeline cache and queue submission are still lock-protected so concurrent
// callers cannot corrupt driver state.
type Session struct {
	opts SessionOptions

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	limits   wgpu.SupportedLimits

	mu        sync.Mutex
	pipelines map[ElementType]*pipeline
	pool      *bufferPool
	closed    bool
}

// NewSession creates the instance, selects an adapter and creates the logical
// device and queue. Any partially constructed state is released on the error
// paths.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 2 * time.Second
	}

	pp := wgpu.PowerPreferenceHighPerformance
	if !opts.SkipProbe {
		if rep, err := detector.Detect(); err == nil {
			if rep.AdapterType == "integrated-gpu" {
				pp = wgpu.PowerPreferenceLowPower
			}
			log.Debug().
				Str("adapter", rep.Name).
				Str("backend", rep.Backend).
				Str("type", rep.AdapterType).
				Msg("capability probe")
		}
	}

	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, &InitError{Err: errors.New("CreateInstance returned nil")}
	}
	ok := false
	defer func() {
		if !ok {
			inst.Release()
		}
	}()

	adapter, err := selectAdapter(inst, adapterFilter(opts), pp)
	if err != nil {
		return nil, err
	}
	defer func() {
		if !ok {
			adapter.Release()
		}
	}()

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{})
	if err != nil {
		return nil, &InitError{Err: fmt.Errorf("request device: %w", err)}
	}
	if device == nil {
		return nil, ErrNoSuitableDevice
	}
	defer func() {
		if !ok {
			device.Release()
		}
	}()

	queue := device.GetQueue()
	if queue == nil {
		return nil, &InitError{Err: errors.New("device has no queue")}
	}

	info := adapter.GetInfo()
	log.Info().
		Str("app", opts.AppName).
		Str("engine", opts.EngineName).
		Str("adapter", strings.TrimSpace(info.Name)).
		Msg("compute session ready")

	s := &Session{
		opts:      opts,
		instance:  inst,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		limits:    adapter.GetLimits(),
		pipelines: make(map[ElementType]*pipeline),
		pool:      newBufferPool(),
	}
	ok = true
	return s, nil
}

func adapterFilter(opts SessionOptions) string {
	if opts.AdapterFilter != "" {
		return opts.AdapterFilter
	}
	return os.Getenv("SHUTTLE_ADAPTER")
}

// selectAdapter enumerates the instance's adapters and picks one by filter
// match, then by discrete-over-integrated preference, falling back through
// the request chain (preferred, low-power, default) when enumeration yields
// nothing usable.
func selectAdapter(inst *wgpu.Instance, filter string, pp wgpu.PowerPreference) (*wgpu.Adapter, error) {
	filter = strings.ToLower(strings.TrimSpace(filter))

	var discrete *wgpu.Adapter
	for _, a := range inst.EnumerateAdapters(nil) {
		info := a.GetInfo()
		name := strings.ToLower(info.Name)
		vendor := strings.ToLower(info.VendorName)
		if filter != "" && (strings.Contains(name, filter) || strings.Contains(vendor, filter)) {
			log.Debug().Str("adapter", info.Name).Msg("adapter selected by filter")
			return a, nil
		}
		if discrete == nil && info.AdapterType.String() == "discrete-gpu" {
			discrete = a
		}
	}
	if filter == "" && discrete != nil {
		return discrete, nil
	}

	tryRequest := func(opts *wgpu.RequestAdapterOptions) *wgpu.Adapter {
		a, err := inst.RequestAdapter(opts)
		if err != nil || a == nil {
			return nil
		}
		return a
	}

	if a := tryRequest(&wgpu.RequestAdapterOptions{PowerPreference: pp}); a != nil {
		return a, nil
	}
	if a := tryRequest(&wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceLowPower}); a != nil {
		return a, nil
	}
	if a := tryRequest(nil); a != nil {
		return a, nil
	}
	return nil, ErrNoSuitableDevice
}

// Limits returns the selected adapter's device limits.
func (s *Session) Limits() wgpu.SupportedLimits { return s.limits }

// Close waits for the device to go idle, then destroys dependents before the
// device, adapter and instance. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	// Tiled/mobile GPUs need the device truly idle before resource teardown.
	s.device.Poll(true, nil)

	for t, p := range s.pipelines {
		p.release()
		delete(s.pipelines, t)
	}
	s.pool.close()

	s.device.Release()
	s.adapter.Release()
	s.instance.Release()
	log.Debug().Msg("compute session closed")
}
