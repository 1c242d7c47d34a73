package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/marketbrief/internal/logger"
	"github.com/deusflow/marketbrief/internal/retry"
)

// ScoringAxes is the fixed axis set every cluster is scored on (0-5 integers).
var ScoringAxes = []string{"expectation_impact", "tail_risk", "market_sensitivity"}

// ClusterItem is the compact record shape sent to the clustering call.
type ClusterItem struct {
	ID          int64   `json:"id"`
	Category    string  `json:"category"`
	Source      string  `json:"source"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	PublishedAt *string `json:"published_at"`
}

// Cluster is one externally produced theme group.
type Cluster struct {
	ClusterID string         `json:"cluster_id"`
	Label     string         `json:"label"`
	Summary   string         `json:"summary"`
	ItemIDs   []int64        `json:"item_ids"`
	Scores    map[string]int `json:"scores"`
}

// ClusterResult is the full clustering response, kept verbatim for the audit
// artifact.
type ClusterResult struct {
	Clusters []Cluster `json:"clusters"`
}

// DraftItem is one selected source item handed to the drafting call.
type DraftItem struct {
	ID          int64   `json:"id"`
	Category    string  `json:"category"`
	Source      string  `json:"source"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	PublishedAt *string `json:"published_at"`
	Content     string  `json:"content"`
}

// DraftRequest carries everything the drafting collaborator needs.
type DraftRequest struct {
	Date             string
	SelectedClusters []Cluster
	SelectedItems    []DraftItem
}

type Story struct {
	Title           string   `json:"title"`
	WhatHappened    string   `json:"what_happened"`
	WhyItMatters    string   `json:"why_it_matters"`
	WhatToWatchNext string   `json:"what_to_watch_next"`
	Sources         []string `json:"sources"`
}

type QuickHit struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
}

type CryptoItem struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Sources []string `json:"sources"`
}

type Dashboard struct {
	Rates     string `json:"rates"`
	Inflation string `json:"inflation"`
	Energy    string `json:"energy"`
	FX        string `json:"fx"`
	Risk      string `json:"risk"`
}

// Draft is the structured brief content returned by the drafting call.
type Draft struct {
	Dashboard   Dashboard    `json:"dashboard"`
	Stories     []Story      `json:"stories"`
	QuickHits   []QuickHit   `json:"quick_hits"`
	CryptoBlock []CryptoItem `json:"crypto_block"`
	Watchlist   []string     `json:"watchlist"`
	AllSources  []string     `json:"all_sources"`
}

const systemCluster = `You are a strict news desk editor.
You will ONLY use the items provided. Do not add facts, do not browse.
Your goal: deduplicate and cluster items into themes for a finance/geopolitics daily brief.
Return valid JSON only.`

const systemDraft = `You are writing an English daily finance brief for students/investors.
Rules:
- Use ONLY the provided source items (titles + content + URLs).
- No investment advice, no buy/sell, no price targets.
- No invented numbers. If not present, say 'not specified'.
- Be neutral, concise, high-signal.
Return valid JSON only (schema provided).`

const clusterOutputSchema = `{
  "clusters": [
    {
      "cluster_id": "string",
      "label": "short theme name",
      "summary": "2-3 sentences",
      "item_ids": ["int"],
      "scores": {
        "expectation_impact": 0,
        "tail_risk": 0,
        "market_sensitivity": 0
      }
    }
  ]
}`

const draftOutputSchema = `{
  "dashboard": {
    "rates": "string",
    "inflation": "string",
    "energy": "string",
    "fx": "string",
    "risk": "string"
  },
  "stories": [
    {
      "title": "string",
      "what_happened": "string",
      "why_it_matters": "string",
      "what_to_watch_next": "string",
      "sources": ["url"]
    }
  ],
  "quick_hits": [{"text": "string", "sources": ["url"]}],
  "crypto_block": [{"title": "string", "body": "string", "sources": ["url"]}],
  "watchlist": ["string"],
  "all_sources": ["url"]
}`

// Client talks JSON-mode Gemini. It implements both the clustering and the
// drafting collaborator capabilities.
type Client struct {
	genai   *genai.Client
	model   string
	timeout time.Duration
	retry   retry.Config
}

// NewClient builds the Gemini collaborator. The API key is required and
// checked here so a misconfigured run fails before any feed is touched.
func NewClient(ctx context.Context, apiKey, model string, timeout time.Duration, retryCfg retry.Config) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required (set GEMINI_API_KEY)")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini: model name is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	if retryCfg.MaxAttempts < 1 {
		retryCfg.MaxAttempts = 1
	}
	return &Client{genai: client, model: model, timeout: timeout, retry: retryCfg}, nil
}

func (c *Client) Close() {
	if c.genai != nil {
		c.genai.Close()
	}
}

type scoringSpec struct {
	Axes  []string `json:"axes"`
	Scale string   `json:"scale"`
}

type clusterRequest struct {
	Task         string          `json:"task"`
	Items        []ClusterItem   `json:"items"`
	Scoring      scoringSpec     `json:"scoring"`
	OutputSchema json.RawMessage `json:"output_schema"`
	Constraints  []string        `json:"constraints"`
}

// Cluster sends the compact item list and returns the parsed cluster result.
// A non-success response or unparseable output is an error; the caller treats
// it as fatal to the run.
func (c *Client) Cluster(ctx context.Context, items []ClusterItem) (*ClusterResult, error) {
	req := clusterRequest{
		Task:  "cluster_and_score",
		Items: items,
		Scoring: scoringSpec{
			Axes:  ScoringAxes,
			Scale: "0-5 integers",
		},
		OutputSchema: json.RawMessage(clusterOutputSchema),
		Constraints: []string{
			"Aim for 10-18 clusters max",
			"Deduplicate near-identical stories into one cluster",
			"Prefer clusters with primary sources",
		},
	}

	var result ClusterResult
	if err := c.generateJSON(ctx, systemCluster, req, &result); err != nil {
		return nil, fmt.Errorf("gemini: cluster call: %w", err)
	}
	logger.Info("clustering complete", "items", len(items), "clusters", len(result.Clusters))
	return &result, nil
}

type templateRules struct {
	LengthTargetWords [2]int `json:"length_target_words"`
	TopStories        int    `json:"top_stories"`
	QuickHits         [2]int `json:"quick_hits"`
	CryptoItems       [2]int `json:"crypto_items"`
}

type draftRequest struct {
	Task             string          `json:"task"`
	Date             string          `json:"date"`
	TemplateRules    templateRules   `json:"template_rules"`
	SelectedClusters []Cluster       `json:"selected_clusters"`
	SelectedItems    []DraftItem     `json:"selected_items"`
	OutputSchema     json.RawMessage `json:"output_schema"`
}

// Draft asks for the structured brief content. The caller renders exactly
// three stories, so fewer than three in the response is an error here.
func (c *Client) Draft(ctx context.Context, req DraftRequest) (*Draft, error) {
	payload := draftRequest{
		Task: "draft_daily_brief",
		Date: req.Date,
		TemplateRules: templateRules{
			LengthTargetWords: [2]int{900, 1200},
			TopStories:        3,
			QuickHits:         [2]int{6, 10},
			CryptoItems:       [2]int{2, 3},
		},
		SelectedClusters: req.SelectedClusters,
		SelectedItems:    req.SelectedItems,
		OutputSchema:     json.RawMessage(draftOutputSchema),
	}

	var draft Draft
	if err := c.generateJSON(ctx, systemDraft, payload, &draft); err != nil {
		return nil, fmt.Errorf("gemini: draft call: %w", err)
	}
	if len(draft.Stories) < 3 {
		return nil, fmt.Errorf("gemini: draft call: got %d stories, need 3", len(draft.Stories))
	}
	return &draft, nil
}

// generateJSON marshals payload as the user turn, runs one JSON-mode
// generation (with bounded retry) and unmarshals the response into dest.
func (c *Client) generateJSON(ctx context.Context, system string, payload any, dest any) error {
	user, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	model := c.genai.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)

	var text string
	err = retry.WithRetry(ctx, c.retry, func() error {
		cctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := model.GenerateContent(cctx, genai.Text(user))
		if err != nil {
			return err
		}
		t, err := responseText(resp)
		if err != nil {
			return err
		}
		text = t
		return nil
	})
	if err != nil {
		return err
	}

	cleaned := stripCodeFence(text)
	if err := json.Unmarshal([]byte(cleaned), dest); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return b.String(), nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models emit even in
// JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
