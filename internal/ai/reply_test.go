package ai

import (
	"errors"
	"reflect"
	"testing"

	"github.com/spigell/cv-matcher/internal/failure"
)

const plainReply = `{"score": 72, "strengths": [" Go ", "Kubernetes"], "weaknesses": ["no AWS"], "recommendations": ["get certified  "]}`

func TestParseReply(t *testing.T) {
	t.Parallel()

	got, err := ParseReply(plainReply)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &MatchResult{
		Score:           72,
		Strengths:       []string{"Go", "Kubernetes"},
		Weaknesses:      []string{"no AWS"},
		Recommendations: []string{"get certified"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestParseReplyFenceIsTransparent(t *testing.T) {
	t.Parallel()

	plain, err := ParseReply(plainReply)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fenced := []string{
		"```json\n" + plainReply + "\n```",
		"```\n" + plainReply + "\n```",
		"```JSON\n" + plainReply + "\n```\n",
		"  ```json" + plainReply + "```  ",
	}

	for _, reply := range fenced {
		got, err := ParseReply(reply)
		if err != nil {
			t.Fatalf("parse %q: %v", reply, err)
		}
		if !reflect.DeepEqual(got, plain) {
			t.Fatalf("fenced reply %q parsed to %+v, expected %+v", reply, got, plain)
		}
	}
}

func TestParseReplyClampsScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
		want  int
	}{
		{name: "above range in fence", reply: "```json\n{\"score\":150,\"strengths\":[],\"weaknesses\":[],\"recommendations\":[]}\n```", want: 100},
		{name: "below range", reply: `{"score":-20,"strengths":[],"weaknesses":[],"recommendations":[]}`, want: 0},
		{name: "in range", reply: `{"score":55,"strengths":[],"weaknesses":[],"recommendations":[]}`, want: 55},
		{name: "fractional", reply: `{"score":87.6,"strengths":[],"weaknesses":[],"recommendations":[]}`, want: 88},
		{name: "upper bound", reply: `{"score":100,"strengths":[],"weaknesses":[],"recommendations":[]}`, want: 100},
		{name: "beyond float range", reply: `{"score":1e400,"strengths":[],"weaknesses":[],"recommendations":[]}`, want: 100},
		{name: "beyond float range negative", reply: `{"score":-1e400,"strengths":[],"weaknesses":[],"recommendations":[]}`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseReply(tt.reply)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Score != tt.want {
				t.Fatalf("expected score %d, got %d", tt.want, got.Score)
			}
		})
	}
}

func TestParseReplyMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
	}{
		{name: "empty", reply: "   "},
		{name: "not json", reply: "The candidate is a good fit."},
		{name: "array", reply: `[1,2,3]`},
		{name: "score as string", reply: `{"score":"80","strengths":[],"weaknesses":[],"recommendations":[]}`},
		{name: "missing score", reply: `{"strengths":[],"weaknesses":[],"recommendations":[]}`},
		{name: "null list", reply: `{"score":80,"strengths":null,"weaknesses":[],"recommendations":[]}`},
		{name: "missing list", reply: `{"score":80,"strengths":[],"weaknesses":[]}`},
		{name: "null element", reply: `{"score":70,"strengths":["go", null],"weaknesses":[],"recommendations":[]}`},
		{name: "object element", reply: `{"score":70,"strengths":[],"weaknesses":[{"text":"go"}],"recommendations":[]}`},
		{name: "list of numbers", reply: `{"score":80,"strengths":[1],"weaknesses":[],"recommendations":[]}`},
		{name: "list as string", reply: `{"score":80,"strengths":"go","weaknesses":[],"recommendations":[]}`},
		{name: "unterminated fence", reply: "```json\n{\"score\":80,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseReply(tt.reply)
			var classified *failure.Error
			if !errors.As(err, &classified) {
				t.Fatalf("expected classified error, got %v", err)
			}
			if classified.Kind != failure.KindAIService || classified.Reason != failure.ReasonMalformedPayload {
				t.Fatalf("expected malformed payload, got %v", classified)
			}
		})
	}
}
