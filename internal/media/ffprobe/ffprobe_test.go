package ffprobe

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"vodpipe/internal/services"
)

type fakeExecutor struct {
	result services.CommandResult
	err    error
	binary string
	args   []string
}

func (f *fakeExecutor) Run(ctx context.Context, binary string, args []string) (services.CommandResult, error) {
	f.binary = binary
	f.args = append([]string(nil), args...)
	if f.err == nil {
		if _, ok := ctx.Deadline(); !ok {
			return services.CommandResult{}, errors.New("expected probe deadline")
		}
	}
	return f.result, f.err
}

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "video"}, {CodecType: "audio"}},
		Format:  Format{Duration: "123.45"},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if !math.IsNaN(Result{Format: Format{Duration: "bad"}}.DurationSeconds()) {
		t.Fatal("expected NaN for non-numeric duration")
	}
}

func TestDurationParsesFormat(t *testing.T) {
	exec := &fakeExecutor{result: services.CommandResult{Stdout: []byte(`{"format":{"duration":"42.500000"}}`)}}
	p := New("/opt/ffprobe", WithExecutor(exec))

	got, err := p.Duration(context.Background(), "/data/original.mp4")
	if err != nil {
		t.Fatalf("Duration returned error: %v", err)
	}
	if got != 42.5 {
		t.Fatalf("expected 42.5, got %v", got)
	}
	if exec.binary != "/opt/ffprobe" {
		t.Fatalf("unexpected binary %q", exec.binary)
	}
	wantArgs := []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", "--", "/data/original.mp4"}
	if !reflect.DeepEqual(exec.args, wantArgs) {
		t.Fatalf("unexpected args %v", exec.args)
	}
}

func TestDurationErrors(t *testing.T) {
	cases := []struct {
		name string
		exec *fakeExecutor
	}{
		{"non-zero exit", &fakeExecutor{result: services.CommandResult{ExitCode: 1}, err: errors.New("exit status 1")}},
		{"invalid json", &fakeExecutor{result: services.CommandResult{Stdout: []byte("not json")}}},
		{"missing duration", &fakeExecutor{result: services.CommandResult{Stdout: []byte(`{"format":{}}`)}}},
		{"non-numeric duration", &fakeExecutor{result: services.CommandResult{Stdout: []byte(`{"format":{"duration":"N/A"}}`)}}},
		{"negative duration", &fakeExecutor{result: services.CommandResult{Stdout: []byte(`{"format":{"duration":"-1"}}`)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New("", WithExecutor(tc.exec)).Duration(context.Background(), "in.mp4")
			if !errors.Is(err, services.ErrProbe) {
				t.Fatalf("expected probe error, got %v", err)
			}
		})
	}
}

func TestDurationZeroIsValid(t *testing.T) {
	exec := &fakeExecutor{result: services.CommandResult{Stdout: []byte(`{"format":{"duration":"0.000000"}}`)}}
	got, err := New("", WithExecutor(exec)).Duration(context.Background(), "in.mp4")
	if err != nil || got != 0 {
		t.Fatalf("expected 0 duration, got %v %v", got, err)
	}
}

func TestInspectRejectsEmptyPath(t *testing.T) {
	_, err := New("", WithTimeout(time.Second)).Inspect(context.Background(), " ")
	if !errors.Is(err, services.ErrProbe) {
		t.Fatalf("expected probe error, got %v", err)
	}
}
