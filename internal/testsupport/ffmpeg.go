package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FakeFFmpeg satisfies postprocess.Executor by writing a small file at the
// output path (the last argument) instead of transcoding.
type FakeFFmpeg struct {
	mu        sync.Mutex
	Calls     [][]string
	Manifests []string
	// Block makes Run write a partial output and wait for cancellation.
	Block bool
	Err   error
}

// Run records the invocation and fakes the output file.
func (f *FakeFFmpeg) Run(ctx context.Context, _ string, args []string, onOutput func(string)) error {
	f.mu.Lock()
	f.Calls = append(f.Calls, append([]string(nil), args...))
	for i, arg := range args {
		if arg == "concat" {
			for j := i; j < len(args)-1; j++ {
				if args[j] == "-i" {
					if data, err := os.ReadFile(args[j+1]); err == nil {
						f.Manifests = append(f.Manifests, string(data))
					}
					break
				}
			}
		}
	}
	block, runErr := f.Block, f.Err
	f.mu.Unlock()

	if len(args) == 0 {
		return nil
	}
	output := args[len(args)-1]
	if onOutput != nil {
		onOutput("size=N/A time=00:00:01.00 bitrate=N/A speed=1x")
	}
	if block {
		_ = os.WriteFile(output, []byte("partial"), 0o644)
		<-ctx.Done()
		return ctx.Err()
	}
	if runErr != nil {
		return runErr
	}
	if strings.HasPrefix(output, "-") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	return os.WriteFile(output, []byte("fake audio: "+filepath.Base(output)), 0o644)
}

// CallCount returns how many times Run was invoked.
func (f *FakeFFmpeg) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
