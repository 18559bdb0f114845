package cli

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"
)

// Spinner draws a progress indicator with a changeable message on one line.
type Spinner struct {
	mu         sync.Mutex
	delay      time.Duration
	writer     io.Writer
	message    string
	lastOutput string
	hideCursor bool
	stopChan   chan struct{}
	done       chan struct{}
	running    bool
}

// NewSpinner creates a spinner writing to w.
func NewSpinner(w io.Writer, msg string, d time.Duration, hideCursor bool) *Spinner {
	return &Spinner{
		delay:      d,
		writer:     w,
		message:    msg,
		hideCursor: hideCursor && runtime.GOOS != "windows",
	}
}

// Start begins drawing in a separate goroutine.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	if s.hideCursor {
		fmt.Fprint(s.writer, "\033[?25l")
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.delay)
		defer ticker.Stop()

		for {
			for _, r := range `⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏` {
				s.mu.Lock()
				output := fmt.Sprintf("\r\033[K%s %s%c%s", s.message, SuccessColor, r, DefaultColor)
				fmt.Fprint(s.writer, output)
				s.lastOutput = output
				s.mu.Unlock()

				select {
				case <-s.stopChan:
					return
				case <-ticker.C:
				}
			}
		}
	}()
}

// SetMessage replaces the text shown next to the spinner.
func (s *Spinner) SetMessage(msg string) {
	s.mu.Lock()
	s.message = msg
	s.mu.Unlock()
}

// Println prints a line above the spinner.
func (s *Spinner) Println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		fmt.Fprint(s.writer, "\r\033[K")
	}
	fmt.Fprintln(s.writer, line)
	if s.running && s.lastOutput != "" {
		fmt.Fprint(s.writer, s.lastOutput)
	}
}

// Stop clears the line, restores the cursor and waits for the drawing
// goroutine to exit.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(s.writer, "\r\033[K")
	if s.hideCursor {
		fmt.Fprint(s.writer, "\033[?25h")
	}
	s.lastOutput = ""
}
