package orchestrator

import (
	"context"
	stderrors "errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/anstrom/netsweep/internal/db"
	"github.com/anstrom/netsweep/internal/discovery"
	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/metrics"
	"github.com/anstrom/netsweep/internal/workers"
)

type fakeDiscoverer struct {
	live  []string
	err   error
	block chan struct{}
	calls atomic.Int32
}

func (d *fakeDiscoverer) Sweep(ctx context.Context, r *discovery.Range) (*discovery.SweepResult, error) {
	d.calls.Add(1)
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	res := &discovery.SweepResult{Range: r, Probed: r.Count()}
	for _, ip := range d.live {
		res.Live = append(res.Live, discovery.Host{IP: net.ParseIP(ip).To4(), Method: discovery.MethodTCP})
	}
	return res, nil
}

func (d *fakeDiscoverer) Method() string { return discovery.MethodTCP }

type fakePorts struct {
	open   map[string][]int
	failOn map[string]error
}

func (p *fakePorts) Scan(ctx context.Context, ip net.IP) ([]int, error) {
	if err, ok := p.failOn[ip.String()]; ok {
		return nil, err
	}
	if ports, ok := p.open[ip.String()]; ok {
		return ports, nil
	}
	return []int{}, nil
}

type hostnameEnricher struct{}

func (hostnameEnricher) Enrich(_ context.Context, h *discovery.Host) {
	h.Hostname = "host-" + h.IP.String()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}

func newTestOrchestrator(t *testing.T, store Store, d Discoverer, p PortScanner, cfg Config) *Orchestrator {
	t.Helper()
	pool := workers.New(workers.Config{Size: 4, QueueSize: 8, ShutdownTimeout: time.Second}).
		WithMetrics(metrics.NewPrometheusMetrics())
	pool.Start()
	t.Cleanup(func() { _ = pool.Shutdown() })

	o := New(store, d, p, hostnameEnricher{}, pool, cfg).WithMetrics(metrics.NewPrometheusMetrics())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o
}

// expectCreate assigns scanID to the scan being created.
func expectCreate(store *MockStore, scanID uuid.UUID) {
	store.EXPECT().CreateScan(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s *db.Scan) error {
			s.ID = scanID
			return nil
		})
}

// echoPersist makes PersistSweep commit a device per observation, with ids
// handed out in call order.
func echoPersist(store *MockStore, network interface{}, markedInactive int64) *gomock.Call {
	return store.EXPECT().PersistSweep(gomock.Any(), gomock.Any(), network, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, _ string, observations []*db.Observation) (*db.SweepRecord, error) {
			record := &db.SweepRecord{Devices: []*db.Device{}, MarkedInactive: markedInactive}
			for i, obs := range observations {
				hostname := obs.Hostname
				record.Devices = append(record.Devices, &db.Device{
					ID:        int64(i + 1),
					IPAddress: db.IPAddr{IP: obs.IP},
					Hostname:  &hostname,
					IsActive:  true,
					OpenPorts: db.PortList(obs.OpenPorts),
				})
			}
			return record, nil
		})
}

func TestRun_SmallRange(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	scanID := uuid.New()

	expectCreate(store, scanID)
	store.EXPECT().PersistSweep(gomock.Any(), scanID, "192.168.1.0/30", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, _ string, observations []*db.Observation) (*db.SweepRecord, error) {
			require.Len(t, observations, 1)
			obs := observations[0]
			assert.Equal(t, "192.168.1.1", obs.IP.String())
			assert.Equal(t, []int{80}, obs.OpenPorts)
			assert.Equal(t, "host-192.168.1.1", obs.Hostname)
			return &db.SweepRecord{
				Devices:        []*db.Device{{ID: 7, IPAddress: db.IPAddr{IP: obs.IP}, IsActive: true, OpenPorts: db.PortList{80}}},
				MarkedInactive: 1,
			}, nil
		})

	d := &fakeDiscoverer{live: []string{"192.168.1.1"}}
	p := &fakePorts{open: map[string][]int{"192.168.1.1": {80}}}
	notifier := &recordingNotifier{}
	o := newTestOrchestrator(t, store, d, p, Config{}).WithNotifier(notifier)

	result, err := o.Run(context.Background(), Request{IPRange: "192.168.1.0/30"})
	require.NoError(t, err)

	assert.Equal(t, scanID, result.ScanID)
	assert.Equal(t, "192.168.1.0/30", result.Range)
	assert.Equal(t, 2, result.Probed)
	require.Len(t, result.Devices, 1)
	assert.Equal(t, "192.168.1.1", result.Devices[0].IPAddress.String())
	assert.True(t, result.Devices[0].IsActive)
	assert.Equal(t, db.PortList{80}, result.Devices[0].OpenPorts)

	assert.Equal(t, []string{EventScanStarted, EventDeviceUpdated, EventScanCompleted}, notifier.types())
	_, active := o.Active()
	assert.False(t, active)
}

func TestRun_NoLiveHosts(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	scanID := uuid.New()

	expectCreate(store, scanID)
	echoPersist(store, "10.0.0.0/29", 3)

	o := newTestOrchestrator(t, store, &fakeDiscoverer{}, &fakePorts{}, Config{})

	result, err := o.Run(context.Background(), Request{IPRange: "10.0.0.0/29", Trigger: TriggerCLI})
	require.NoError(t, err)
	assert.NotNil(t, result.Devices)
	assert.Empty(t, result.Devices)
}

func TestRun_DevicesSortedByAddress(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)

	expectCreate(store, uuid.New())
	echoPersist(store, gomock.Any(), 0)

	d := &fakeDiscoverer{live: []string{"10.1.0.10", "10.1.0.2", "10.1.0.1"}}
	o := newTestOrchestrator(t, store, d, &fakePorts{}, Config{})

	result, err := o.Run(context.Background(), Request{IPRange: "10.1.0.0/27"})
	require.NoError(t, err)

	var ips []string
	for _, dev := range result.Devices {
		ips = append(ips, dev.IPAddress.String())
	}
	assert.Equal(t, []string{"10.1.0.1", "10.1.0.2", "10.1.0.10"}, ips)
}

func TestRun_PortScanFailureKeepsHost(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)

	expectCreate(store, uuid.New())
	echoPersist(store, gomock.Any(), 0)

	d := &fakeDiscoverer{live: []string{"10.2.0.1", "10.2.0.2"}}
	p := &fakePorts{
		open:   map[string][]int{"10.2.0.1": {22, 443}},
		failOn: map[string]error{"10.2.0.2": stderrors.New("socket budget closed")},
	}
	o := newTestOrchestrator(t, store, d, p, Config{})

	result, err := o.Run(context.Background(), Request{IPRange: "10.2.0.0/29"})
	require.NoError(t, err)
	require.Len(t, result.Devices, 2)
	assert.Equal(t, db.PortList{22, 443}, result.Devices[0].OpenPorts)
	assert.NotNil(t, result.Devices[1].OpenPorts)
	assert.Empty(t, result.Devices[1].OpenPorts)
}

func TestStart_InvalidRange(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	d := &fakeDiscoverer{}
	o := newTestOrchestrator(t, store, d, &fakePorts{}, Config{MaxHosts: 254})

	for _, input := range []string{"", "not-a-range", "192.168.1.0/33", "10.0.0.0/16", "fe80::/64"} {
		_, err := o.Start(context.Background(), Request{IPRange: input})
		require.Error(t, err, input)
		assert.Equal(t, errors.CodeInvalidRange, errors.GetCode(err), input)
	}
	assert.Zero(t, d.calls.Load())
	_, active := o.Active()
	assert.False(t, active)
}

func TestStart_RejectsOverlappingSweep(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)

	expectCreate(store, uuid.New())
	echoPersist(store, gomock.Any(), 0)

	d := &fakeDiscoverer{block: make(chan struct{})}
	o := newTestOrchestrator(t, store, d, &fakePorts{}, Config{})

	first, err := o.Start(context.Background(), Request{IPRange: "192.168.5.0/24"})
	require.NoError(t, err)

	activeRange, active := o.Active()
	assert.True(t, active)
	assert.Equal(t, "192.168.5.0/24", activeRange)

	_, err = o.Start(context.Background(), Request{IPRange: "192.168.6.0/24"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeScanInProgress, errors.GetCode(err))

	close(d.block)
	outcome := <-first
	require.NoError(t, outcome.Err)

	// The lock is free again once the first sweep has reported.
	require.Eventually(t, func() bool {
		_, active := o.Active()
		return !active
	}, time.Second, 5*time.Millisecond)
}

func TestRun_DiscoveryFailureRecordsFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	scanID := uuid.New()

	expectCreate(store, scanID)
	store.EXPECT().FailScan(gomock.Any(), scanID, gomock.Any()).Return(nil)

	d := &fakeDiscoverer{err: errors.ErrCapabilityUnavailable(discovery.MethodICMP, stderrors.New("operation not permitted"))}
	notifier := &recordingNotifier{}
	o := newTestOrchestrator(t, store, d, &fakePorts{}, Config{}).WithNotifier(notifier)

	_, err := o.Run(context.Background(), Request{IPRange: "192.168.1.0/30"})
	require.Error(t, err)
	assert.Equal(t, errors.CodePermission, errors.GetCode(err))
	assert.Equal(t, []string{EventScanStarted, EventScanFailed}, notifier.types())
}

func TestRun_DatabaseFailureAbortsSweep(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	scanID := uuid.New()

	expectCreate(store, scanID)
	store.EXPECT().PersistSweep(gomock.Any(), scanID, "192.168.1.0/29", gomock.Len(2)).
		Return(nil, errors.NewDatabaseError(errors.CodeDatabaseQuery, "insert failed"))
	store.EXPECT().FailScan(gomock.Any(), scanID, gomock.Any()).Return(nil)

	d := &fakeDiscoverer{live: []string{"192.168.1.1", "192.168.1.2"}}
	notifier := &recordingNotifier{}
	o := newTestOrchestrator(t, store, d, &fakePorts{}, Config{}).WithNotifier(notifier)

	_, err := o.Run(context.Background(), Request{IPRange: "192.168.1.0/29"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeDatabaseQuery, errors.GetCode(err))
	// A rolled-back sweep never announces device updates.
	assert.Equal(t, []string{EventScanStarted, EventScanFailed}, notifier.types())
}

func TestRun_CreateScanFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)

	store.EXPECT().CreateScan(gomock.Any(), gomock.Any()).
		Return(errors.ErrDatabaseConnection(stderrors.New("connection refused")))

	d := &fakeDiscoverer{}
	o := newTestOrchestrator(t, store, d, &fakePorts{}, Config{})

	_, err := o.Run(context.Background(), Request{IPRange: "192.168.1.0/30"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeDatabaseConnection, errors.GetCode(err))
	assert.Zero(t, d.calls.Load())
}

func TestRun_Timeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	scanID := uuid.New()

	expectCreate(store, scanID)
	store.EXPECT().FailScan(gomock.Any(), scanID, gomock.Any()).Return(nil)

	d := &fakeDiscoverer{block: make(chan struct{})}
	o := newTestOrchestrator(t, store, d, &fakePorts{}, Config{ScanTimeout: 50 * time.Millisecond})

	_, err := o.Run(context.Background(), Request{IPRange: "192.168.1.0/30"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeTimeout, errors.GetCode(err))
}

func TestShutdown_CancelsRunningSweep(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	scanID := uuid.New()

	expectCreate(store, scanID)
	store.EXPECT().FailScan(gomock.Any(), scanID, gomock.Any()).Return(nil)

	d := &fakeDiscoverer{block: make(chan struct{})}
	o := newTestOrchestrator(t, store, d, &fakePorts{}, Config{})

	out, err := o.Start(context.Background(), Request{IPRange: "192.168.1.0/30"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	outcome := <-out
	require.Error(t, outcome.Err)
	assert.Equal(t, errors.CodeCanceled, errors.GetCode(outcome.Err))

	_, err = o.Start(context.Background(), Request{IPRange: "192.168.1.0/30"})
	assert.Equal(t, errors.CodeServiceUnavailable, errors.GetCode(err))
}

func TestRun_CallerContextDoesNotCancelSweep(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)

	expectCreate(store, uuid.New())
	done := make(chan struct{})
	echoPersist(store, gomock.Any(), 0).Do(func(context.Context, uuid.UUID, string, []*db.Observation) {
		close(done)
	})

	d := &fakeDiscoverer{block: make(chan struct{})}
	o := newTestOrchestrator(t, store, d, &fakePorts{}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := o.Run(ctx, Request{IPRange: "192.168.1.0/30"})
	assert.ErrorIs(t, err, context.Canceled)

	close(d.block)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep did not finish after the caller left")
	}
}
