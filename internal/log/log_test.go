package log_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ghettovoice/sipflow/internal/log"
)

func TestNew(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		opts *log.Options
		want []string
		skip []string
	}{
		{"console", nil, []string{"INF", "capture started", "boom"}, []string{"hidden"}},
		{"console debug", &log.Options{Level: slog.LevelDebug}, []string{"hidden", "capture started"}, nil},
		{"dev", &log.Options{Dev: true}, []string{"capture started", "boom"}, []string{"hidden"}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			l := log.New(&buf, c.opts)
			l.Debug("hidden")
			l.Info("capture started", slog.Any("error", errors.New("boom")))

			out := buf.String()
			for _, w := range c.want {
				if !strings.Contains(out, w) {
					t.Errorf("output %q does not contain %q", out, w)
				}
			}
			for _, s := range c.skip {
				if strings.Contains(out, s) {
					t.Errorf("output %q contains %q", out, s)
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}

	for _, c := range cases {
		got, err := log.ParseLevel(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("log.ParseLevel(%q) error = %v, want error %v", c.in, err, c.wantErr)
			continue
		}
		if !c.wantErr && got != c.want {
			t.Errorf("log.ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestDefault(t *testing.T) {
	if log.Default() != log.Noop {
		t.Fatal("log.Default() is not log.Noop before log.SetDefault()")
	}

	l := log.New(&bytes.Buffer{}, nil)
	log.SetDefault(l)
	t.Cleanup(func() { log.SetDefault(nil) })
	if log.Default() != l {
		t.Error("log.Default() did not return the installed logger")
	}
}
