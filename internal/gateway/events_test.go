package gateway

import (
	"bufio"
	"context"
	"errors"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/surveil/internal/router"
	"github.com/flemzord/surveil/internal/stream"
)

type sseFrame struct {
	id    string
	event string
	data  string
}

// readFrames reads Server-Sent Events until the body ends.
func readFrames(t *testing.T, resp *http.Response) []sseFrame {
	t.Helper()
	var (
		frames []sseFrame
		cur    sseFrame
	)
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.id != "" {
				frames = append(frames, cur)
			}
			cur = sseFrame{}
		case strings.HasPrefix(line, "id: "):
			cur.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("reading event stream: %v", err)
	}
	return frames
}

func completedTask(t *testing.T, f *fixture) string {
	t.Helper()
	var sub SubmitResponse
	decode(t, f.upload(t, "a.xml", alertXML("ALT-20", "Wash Trade", "SMARTS-WT-001")), &sub)
	f.waitDone(t, sub.TaskID)
	return sub.TaskID
}

func TestEvents_SSE(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	id := completedTask(t, f)

	resp := f.get(t, "/tasks/"+id+"/events")
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	frames := readFrames(t, resp)
	if len(frames) < 2 {
		t.Fatalf("got %d frames, want at least 2", len(frames))
	}
	if frames[0].event != string(stream.CategoryAnalysisStarted) {
		t.Errorf("first event = %q, want %q", frames[0].event, stream.CategoryAnalysisStarted)
	}
	last := frames[len(frames)-1]
	if last.event != string(stream.CategoryAnalysisComplete) {
		t.Errorf("last event = %q, want %q", last.event, stream.CategoryAnalysisComplete)
	}
	var ev stream.Event
	if err := json.Unmarshal([]byte(last.data), &ev); err != nil {
		t.Fatalf("decoding final event: %v", err)
	}
	if !ev.Final || ev.TaskID != id || ev.ID != last.id {
		t.Errorf("final event = %+v", ev)
	}

	// Resuming after the first event replays the rest.
	replay := readFrames(t, f.do(t, http.MethodGet, "/tasks/"+id+"/events", nil, http.Header{"Last-Event-ID": {frames[0].id}}))
	if len(replay) != len(frames)-1 {
		t.Fatalf("replay has %d frames, want %d", len(replay), len(frames)-1)
	}
	for i := range replay {
		if replay[i].id != frames[i+1].id {
			t.Errorf("replay[%d] = %s, want %s", i, replay[i].id, frames[i+1].id)
		}
	}

	query := readFrames(t, f.get(t, "/tasks/"+id+"/events?last_event_id="+last.id))
	if len(query) != 0 {
		t.Errorf("resuming after the final event returned %d frames", len(query))
	}
}

func TestEvents_SSEFollowsLiveTask(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	f := newFixture(t, fixtureOptions{gate: gate})

	var sub SubmitResponse
	decode(t, f.upload(t, "a.xml", alertXML("ALT-21", "Insider Trading", "")), &sub)

	resp := f.get(t, "/tasks/"+sub.TaskID+"/events")
	time.AfterFunc(50*time.Millisecond, func() { close(gate) })

	frames := readFrames(t, resp)
	if len(frames) == 0 || frames[len(frames)-1].event != string(stream.CategoryAnalysisComplete) {
		t.Errorf("live stream frames = %+v", frames)
	}
}

func TestEvents_WebSocket(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	id := completedTask(t, f)

	client := router.NewClient(5 * time.Second)
	var got []stream.Event
	err := client.Follow(t.Context(), f.srv.URL+"/agents/wash_trade", id, "", func(ev stream.Event) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if len(got) < 2 || !got[len(got)-1].Final {
		t.Fatalf("events = %+v", got)
	}

	var resumed []stream.Event
	err = client.Follow(t.Context(), f.srv.URL+"/agents/wash_trade", id, got[0].ID, func(ev stream.Event) error {
		resumed = append(resumed, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Follow after %s: %v", got[0].ID, err)
	}
	if len(resumed) != len(got)-1 {
		t.Fatalf("resumed %d events, want %d", len(resumed), len(got)-1)
	}
	if resumed[0].ID != got[1].ID {
		t.Errorf("resumed at %s, want %s", resumed[0].ID, got[1].ID)
	}

	// Resuming at the final event ends the stream at once.
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	err = client.Follow(ctx, f.srv.URL+"/agents/wash_trade", id, got[len(got)-1].ID, func(ev stream.Event) error {
		t.Errorf("unexpected event after final: %+v", ev)
		return nil
	})
	if !errors.Is(err, router.ErrStreamClosed) {
		t.Errorf("Follow after final event: got %v, want ErrStreamClosed", err)
	}
}

func TestEvents_WebSocketUnknownTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	expectError(t, f.get(t, "/tasks/nope/ws"), http.StatusNotFound, codeNotFound)

	err := router.NewClient(time.Second).Follow(t.Context(), f.srv.URL, "nope", "", func(stream.Event) error { return nil })
	if err == nil {
		t.Error("expected dial failure for an unknown task")
	}
}
