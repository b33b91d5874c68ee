package workflow_test

import (
	"context"
	"sync"

	"shelfarr/internal/indexer"
	"shelfarr/internal/notifications"
	"shelfarr/internal/pathmap"
	"shelfarr/internal/postprocess"
	"shelfarr/internal/queue"
	"shelfarr/internal/torrent"
)

type fakeIndexer struct {
	mu        sync.Mutex
	results   []indexer.Result
	searchErr error
	payload   []byte
	fetchErr  error
	searches  int
	fetches   []indexer.Ref
}

func (f *fakeIndexer) Search(_ context.Context, _ queue.MediaKind, _ []string) ([]indexer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]indexer.Result(nil), f.results...), nil
}

func (f *fakeIndexer) Fetch(_ context.Context, ref indexer.Ref) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, ref)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.payload, nil
}

func (f *fakeIndexer) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches
}

type fakeTransfer struct {
	mu        sync.Mutex
	mapper    pathmap.Mapper
	hash      string
	submitErr error
	status    torrent.TransferStatus
	pollErr   error
	submitted []torrent.SubmitOptions
	limits    []torrent.SeedPolicy
	resumed   []string
	inactive  bool
}

func (f *fakeTransfer) Submit(_ context.Context, _ []byte, opts torrent.SubmitOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, opts)
	return f.hash, nil
}

func (f *fakeTransfer) Poll(_ context.Context, _ string) (torrent.TransferStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		return torrent.TransferStatus{}, f.pollErr
	}
	return f.status, nil
}

func (f *fakeTransfer) MapPath(remote string) (string, error) {
	return f.mapper.Map(remote)
}

func (f *fakeTransfer) ApplySeedLimits(_ context.Context, _ string, policy torrent.SeedPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, policy)
	return nil
}

func (f *fakeTransfer) ResumeIfInactive(_ context.Context, ref string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.inactive {
		return false, nil
	}
	f.resumed = append(f.resumed, ref)
	f.inactive = false
	return true, nil
}

func (f *fakeTransfer) setStatus(status torrent.TransferStatus) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
}

// blockingProcessor waits for cancellation once started.
type blockingProcessor struct {
	started chan struct{}
	once    sync.Once
}

func newBlockingProcessor() *blockingProcessor {
	return &blockingProcessor{started: make(chan struct{})}
}

func (p *blockingProcessor) Process(ctx context.Context, _ *queue.Job, _ string) (postprocess.Result, error) {
	p.once.Do(func() { close(p.started) })
	<-ctx.Done()
	return postprocess.Result{}, ctx.Err()
}

type fakePublisher struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (p *fakePublisher) Publish(context.Context, *queue.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *fakePublisher) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *fakePublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) has(event notifications.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}
