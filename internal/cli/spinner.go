package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Spinner is a stderr progress indicator for steps with no incremental
// output (SVG rendering, large materializations). It shows the elapsed
// time next to the message and stops on its own when the surrounding
// context ends, so an interrupted command does not keep drawing over the
// error output.
type Spinner struct {
	message string
	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// newSpinner creates a spinner that draws until Stop is called or ctx
// ends, whichever comes first.
func newSpinner(ctx context.Context, message string) *Spinner {
	sctx, cancel := context.WithCancel(ctx)
	return &Spinner{
		message: message,
		started: time.Now(),
		ctx:     sctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
}

// Start begins the animation.
func (s *Spinner) Start() {
	go func() {
		defer close(s.stopped)
		defer s.clearLine()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				frame := spinnerFrames[i%len(spinnerFrames)]
				elapsed := time.Since(s.started).Round(time.Second)
				fmt.Fprintf(os.Stderr, "\r%s %s",
					styleIconSpinner.Render(frame),
					StyleDim.Render(fmt.Sprintf("%s (%s)", s.message, elapsed)))
			}
		}
	}()
}

// Stop halts the animation and clears the line. Safe to call more than
// once; it blocks until the drawing goroutine has exited.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		s.cancel()
		<-s.stopped
	})
}

func (s *Spinner) clearLine() {
	// Message plus icon, elapsed time and padding.
	fmt.Fprintf(os.Stderr, "\r%s\r", strings.Repeat(" ", len(s.message)+16))
}
