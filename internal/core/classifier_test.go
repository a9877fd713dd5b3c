package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/colannotate/internal/human"
	"github.com/JonMunkholm/colannotate/internal/oracle"
)

var testDataset = Dataset{Name: "Rainfall", Description: "Monthly rainfall by station"}

func testQuestion() Question {
	return Question{
		Dataset: testDataset,
		Column:  Column{Name: "station_lat", Values: []string{"51.5", "48.8"}},
		Options: []string{"GEO", "DATE", "FEATURE"},
		Prompt:  promptRole,
		Topic:   "column type",
	}
}

func TestClassify_AcceptsFirstValidReply(t *testing.T) {
	o := oracle.NewScript("GEO")
	h := human.NewScript()

	d, err := NewClassifier(o, h, 0, nil).Classify(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Choice != "GEO" || !d.OK || d.Source != SourceOracle {
		t.Errorf("Classify() = %+v, want GEO from oracle", d)
	}
	if n := len(o.Calls()); n != 1 {
		t.Errorf("oracle calls = %d, want 1", n)
	}
	if n := len(h.Prompts()); n != 0 {
		t.Errorf("human prompts = %d, want 0", n)
	}
}

func TestClassify_RepromptAccepted(t *testing.T) {
	o := oracle.NewScript("geographic", "GEO")
	h := human.NewScript()

	d, err := NewClassifier(o, h, 0, nil).Classify(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Choice != "GEO" || d.Source != SourceReprompt {
		t.Errorf("Classify() = %+v, want GEO from reprompt", d)
	}

	calls := o.Calls()
	if len(calls) != 2 {
		t.Fatalf("oracle calls = %d, want 2", len(calls))
	}
	hist := calls[1].History
	if len(hist) != 3 {
		t.Fatalf("reprompt history length = %d, want 3", len(hist))
	}
	if hist[1].Role != oracle.RoleAssistant || hist[1].Content != "geographic" {
		t.Errorf("history[1] = %+v, want assistant echo of previous reply", hist[1])
	}
	if hist[2].Role != oracle.RoleSystem || !strings.Contains(hist[2].Content, "`geographic` is not a valid answer") {
		t.Errorf("history[2] = %+v, want invalid-answer notice", hist[2])
	}
}

func TestClassify_TwoInvalidRepliesThenHuman(t *testing.T) {
	o := oracle.NewScript("banana", "still banana")
	h := human.NewScript("feature")

	d, err := NewClassifier(o, h, 0, nil).Classify(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if n := len(o.Calls()); n != 2 {
		t.Errorf("oracle calls = %d, want 2", n)
	}
	if n := len(h.Prompts()); n != 1 {
		t.Errorf("human prompts = %d, want 1", n)
	}
	if d.Choice != "FEATURE" || d.Source != SourceHuman {
		t.Errorf("Classify() = %+v, want FEATURE from human", d)
	}
}

func TestClassify_UnsureSkipsReprompt(t *testing.T) {
	o := oracle.NewScript(Unsure)
	h := human.NewScript("DATE")

	d, err := NewClassifier(o, h, 0, nil).Classify(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if n := len(o.Calls()); n != 1 {
		t.Errorf("oracle calls = %d, want 1", n)
	}
	if d.Choice != "DATE" {
		t.Errorf("Choice = %q, want DATE", d.Choice)
	}
}

func TestClassify_OracleFailureEscalates(t *testing.T) {
	o := oracle.NewScript().Queue(
		oracle.Reply{Err: context.DeadlineExceeded},
		oracle.Reply{Err: errors.New("connection reset")},
	)
	h := human.NewScript("GEO")

	d, err := NewClassifier(o, h, 0, nil).Classify(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if n := len(o.Calls()); n != 2 {
		t.Errorf("oracle calls = %d, want 2", n)
	}
	if d.Source != SourceHuman {
		t.Errorf("Source = %q, want human", d.Source)
	}
	// A failed call has no reply to echo back.
	if hist := o.Calls()[1].History; len(hist) != 2 {
		t.Errorf("reprompt history length = %d, want 2", len(hist))
	}
}

func TestClassify_PerCallTimeoutEscalates(t *testing.T) {
	o := oracle.Func(func(ctx context.Context, _ string, _ []oracle.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	h := human.NewScript("GEO")

	d, err := NewClassifier(o, h, time.Millisecond, nil).Classify(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Choice != "GEO" || d.Source != SourceHuman {
		t.Errorf("Classify() = %+v, want GEO from human", d)
	}
}

func TestClassify_RunContextDone(t *testing.T) {
	tests := []struct {
		name    string
		ctx     func() (context.Context, context.CancelFunc)
		wantErr error
	}{
		{
			name: "cancelled before asking",
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx, cancel
			},
			wantErr: context.Canceled,
		},
		{
			name: "deadline passes during oracle call",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 10*time.Millisecond)
			},
			wantErr: context.DeadlineExceeded,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.ctx()
			defer cancel()
			o := oracle.Func(func(ctx context.Context, _ string, _ []oracle.Message) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			})
			h := human.NewScript(human.None)

			_, err := NewClassifier(o, h, 0, nil).Classify(ctx, testQuestion())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Classify() error = %v, want %v", err, tt.wantErr)
			}
			if n := len(h.Prompts()); n != 0 {
				t.Errorf("human prompts = %d, want 0", n)
			}
		})
	}
}

func TestClassify_HumanLoop(t *testing.T) {
	tests := []struct {
		name        string
		answers     []string
		wantChoice  string
		wantOK      bool
		wantNotices int
	}{
		{"none declines", []string{"none"}, "", false, 0},
		{"case normalized", []string{" geo "}, "GEO", true, 0},
		{"invalid then valid", []string{"maybe", "LATITUDE", "date"}, "DATE", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := oracle.NewScript(Unsure)
			h := human.NewScript(tt.answers...)

			d, err := NewClassifier(o, h, 0, nil).Classify(context.Background(), testQuestion())
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if d.Choice != tt.wantChoice || d.OK != tt.wantOK {
				t.Errorf("Classify() = %+v, want choice %q ok %v", d, tt.wantChoice, tt.wantOK)
			}
			if n := len(h.Notices()); n != tt.wantNotices {
				t.Errorf("notices = %d, want %d", n, tt.wantNotices)
			}
		})
	}
}

func TestClassify_HumanInputClosed(t *testing.T) {
	o := oracle.NewScript(Unsure)
	h := human.NewScript()

	_, err := NewClassifier(o, h, 0, nil).Classify(context.Background(), testQuestion())
	if !errors.Is(err, human.ErrScriptExhausted) {
		t.Errorf("Classify() error = %v, want ErrScriptExhausted", err)
	}
}

func TestClassify_PromptShape(t *testing.T) {
	o := oracle.NewScript("GEO")
	if _, err := NewClassifier(o, human.Decline{}, 0, nil).Classify(context.Background(), testQuestion()); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	call := o.Calls()[0]
	if call.System != oracle.DefaultSystemPrompt {
		t.Errorf("system prompt = %q, want default", call.System)
	}
	q := call.Last().Content
	for _, want := range []string{`"Rainfall"`, `"station_lat"`, "51.5", "GEO, DATE, FEATURE, or UNSURE"} {
		if !strings.Contains(q, want) {
			t.Errorf("question missing %q:\n%s", want, q)
		}
	}
}
