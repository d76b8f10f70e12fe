package monitoring

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// Logf is the package-level logger shared by the table loaders, the report
// builder and the downloader. It defaults to log.Printf.
var Logf func(format string, v ...any) = log.Printf

var mu sync.Mutex

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...any)) {
	mu.Lock()
	defer mu.Unlock()
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}

// Mute silences Logf until the returned restore func is called.
func Mute() (restore func()) {
	mu.Lock()
	prev := Logf
	mu.Unlock()
	SetLogger(nil)
	return func() { SetLogger(prev) }
}

// Recorder keeps every formatted Logf line.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Capture routes Logf into a Recorder until restore is called.
func Capture() (rec *Recorder, restore func()) {
	rec = &Recorder{}
	mu.Lock()
	prev := Logf
	mu.Unlock()
	SetLogger(func(format string, v ...any) {
		rec.mu.Lock()
		rec.lines = append(rec.lines, fmt.Sprintf(format, v...))
		rec.mu.Unlock()
	})
	return rec, func() { SetLogger(prev) }
}

func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Contains reports whether any recorded line contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}
