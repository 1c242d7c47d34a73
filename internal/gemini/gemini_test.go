package gemini

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"github.com/deusflow/marketbrief/internal/retry"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain json untouched", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading whitespace", "  \n```json\n{}\n```  ", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.in); got != tt.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResponseText(t *testing.T) {
	t.Run("joins text parts", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"clus`), genai.Text(`ters":[]}`)}},
			}},
		}
		got, err := responseText(resp)
		if err != nil {
			t.Fatalf("responseText: %v", err)
		}
		if got != `{"clusters":[]}` {
			t.Errorf("got %q", got)
		}
	})

	t.Run("empty candidates", func(t *testing.T) {
		if _, err := responseText(&genai.GenerateContentResponse{}); err == nil {
			t.Fatal("expected error for empty response")
		}
	})
}

func TestClusterResultDecoding(t *testing.T) {
	raw := `{
	  "clusters": [
	    {
	      "cluster_id": "c1",
	      "label": "Rates",
	      "summary": "Central banks on hold.",
	      "item_ids": [1, 4],
	      "scores": {"expectation_impact": 4, "tail_risk": 2, "market_sensitivity": 5}
	    }
	  ]
	}`

	var result ClusterResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(result.Clusters) != 1 {
		t.Fatalf("got %d clusters", len(result.Clusters))
	}
	c := result.Clusters[0]
	if c.ClusterID != "c1" || len(c.ItemIDs) != 2 {
		t.Errorf("cluster = %+v", c)
	}
	if c.Scores["market_sensitivity"] != 5 {
		t.Errorf("scores = %v", c.Scores)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(context.Background(), "", "gemini-1.5-flash", 0, retry.Config{MaxAttempts: 1}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
