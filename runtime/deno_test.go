package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/scriptrun/types"
)

// TestProcessRunner_ConcurrentDenoRunsShareSnippet runs the same TypeScript
// snippet in parallel; every run must see its own input.
func TestProcessRunner_ConcurrentDenoRunsShareSnippet(t *testing.T) {
	if _, err := exec.LookPath("deno"); err != nil {
		t.Skip("deno not installed")
	}
	runner := &ProcessRunner{
		Commands: RuntimeCommands{Deno: "deno", DenoArgs: DefaultDenoArgs},
		Cache:    NewSnippetCache(t.TempDir()),
	}
	snippet := types.Snippet{
		Language: types.LanguageTypeScript,
		Body:     "export default (input: { n: number }) => input.n * 2",
	}

	const runs = 6
	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for i := range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := runner.Run(context.Background(), Request{
				Snippet: snippet,
				Input:   json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
				Timeout: time.Minute,
			})
			if err != nil {
				errs <- err
				return
			}
			want := fmt.Sprint(i * 2)
			if res.ExitCode != 0 || res.Result.Result == nil || *res.Result.Result != want {
				errs <- fmt.Errorf("run %d: exit %d, result %+v, want %s", i, res.ExitCode, res.Result, want)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
