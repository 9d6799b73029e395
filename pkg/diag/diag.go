// Package diag は、取得失敗やタスク内エラーを呼び出し元へ伝える診断チャネルを提供します。
// 診断イベントは観測専用であり、処理を中断させることはありません。
package diag

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Level は診断イベントの重要度です。
type Level int

const (
	// LevelWarning は、リトライ対象となる一時的な失敗を表します。
	LevelWarning Level = iota
	// LevelError は、URLタスクの結果が空に劣化した失敗を表します。
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Event は1件の診断イベントです。
type Event struct {
	Level       Level
	URL         string
	Attempt     int // 試行番号 (1始まり)。試行に紐づかない場合は 0
	MaxAttempts int
	Message     string
	Reason      error
}

// String は表示用の1行の文字列を返します。
func (e Event) String() string {
	s := fmt.Sprintf("[%s] %s", e.Level, e.URL)
	if e.Attempt > 0 {
		s += fmt.Sprintf(" (試行 %d/%d)", e.Attempt, e.MaxAttempts)
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Reason != nil {
		s += ": " + e.Reason.Error()
	}
	return s
}

// Sink は診断イベントの受け取り先です。
// 複数のゴルーチンから同時に呼び出されるため、実装は並行安全である必要があります。
type Sink interface {
	Report(e Event)
}

// SinkFunc は関数を Sink として扱うためのアダプターです。
type SinkFunc func(e Event)

// Report は Sink インターフェースを満たします。
func (f SinkFunc) Report(e Event) {
	f(e)
}

// Discard はすべてのイベントを破棄する Sink です。
var Discard Sink = SinkFunc(func(Event) {})

// OrDiscard は sink が nil の場合に Discard を返します。
func OrDiscard(sink Sink) Sink {
	if sink == nil {
		return Discard
	}
	return sink
}

// Multi は複数の Sink へイベントを配信する Sink を返します。nil は無視されます。
func Multi(sinks ...Sink) Sink {
	var active []Sink
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return SinkFunc(func(e Event) {
		for _, s := range active {
			s.Report(e)
		}
	})
}

// Recorder は受け取ったイベントをメモリ上に蓄積する Sink です。
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Report は Sink インターフェースを満たします。
func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events は蓄積されたイベントのコピーを返します。
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count は指定したレベルのイベント数を返します。
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Level == level {
			n++
		}
	}
	return n
}

// NewLogSink は、イベントを zerolog のログとして出力する Sink を返します。
// Warning は Warn レベル、Error は Error レベルで記録されます。
func NewLogSink(logger zerolog.Logger) Sink {
	return SinkFunc(func(e Event) {
		var ev *zerolog.Event
		if e.Level == LevelError {
			ev = logger.Error()
		} else {
			ev = logger.Warn()
		}
		ev = ev.Str("url", e.URL)
		if e.Attempt > 0 {
			ev = ev.Int("attempt", e.Attempt).Int("max_attempts", e.MaxAttempts)
		}
		if e.Reason != nil {
			ev = ev.Err(e.Reason)
		}
		ev.Msg(e.Message)
	})
}
