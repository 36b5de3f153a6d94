package models

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Capability is an ordered model capability tier.
type Capability int

const (
	CapabilityBasic Capability = iota + 1
	CapabilityIntermediate
	CapabilityAdvanced
	CapabilityExpert
)

var capabilityNames = map[Capability]string{
	CapabilityBasic:        "BASIC",
	CapabilityIntermediate: "INTERMEDIATE",
	CapabilityAdvanced:     "ADVANCED",
	CapabilityExpert:       "EXPERT",
}

func (c Capability) String() string {
	if s, ok := capabilityNames[c]; ok {
		return s
	}
	return "UNKNOWN"
}

func (c Capability) Valid() bool {
	_, ok := capabilityNames[c]
	return ok
}

// ParseCapability accepts names case-insensitively.
func ParseCapability(s string) (Capability, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for c, name := range capabilityNames {
		if name == s {
			return c, true
		}
	}
	return 0, false
}

func (c Capability) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Capability) UnmarshalText(b []byte) error {
	v, ok := ParseCapability(string(b))
	if !ok {
		return NewValidationError("capability", "unknown capability %q", string(b))
	}
	*c = v
	return nil
}

func (c *Capability) UnmarshalYAML(n *yaml.Node) error {
	return c.UnmarshalText([]byte(n.Value))
}

type TaskType string

const (
	TaskGeneral            TaskType = "GENERAL"
	TaskDataExtraction     TaskType = "DATA_EXTRACTION"
	TaskCostOptimized      TaskType = "COST_OPTIMIZED"
	TaskRealTimeAnalysis   TaskType = "REAL_TIME_ANALYSIS"
	TaskComplexReasoning   TaskType = "COMPLEX_REASONING"
	TaskPatternRecognition TaskType = "PATTERN_RECOGNITION"
	TaskRiskAssessment     TaskType = "RISK_ASSESSMENT"
	TaskSentimentAnalysis  TaskType = "SENTIMENT_ANALYSIS"
	TaskSummarization      TaskType = "SUMMARIZATION"
)

var TaskTypes = []TaskType{
	TaskGeneral, TaskDataExtraction, TaskCostOptimized, TaskRealTimeAnalysis,
	TaskComplexReasoning, TaskPatternRecognition, TaskRiskAssessment,
	TaskSentimentAnalysis, TaskSummarization,
}

func (t TaskType) Valid() bool {
	for _, v := range TaskTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ModelDescriptor is one entry of the model catalog.
type ModelDescriptor struct {
	ID              string     `json:"id" yaml:"id"`
	DisplayName     string     `json:"display_name" yaml:"display_name"`
	Provider        string     `json:"provider" yaml:"provider"`
	Capability      Capability `json:"capability" yaml:"capability"`
	CostPer1KInput  float64    `json:"cost_per_1k_input" yaml:"cost_per_1k_input"`
	CostPer1KOutput float64    `json:"cost_per_1k_output" yaml:"cost_per_1k_output"`
	ContextWindow   int        `json:"context_window" yaml:"context_window"`
	SpeedScore      float64    `json:"speed_score" yaml:"speed_score"`
	ReasoningScore  float64    `json:"reasoning_score" yaml:"reasoning_score"`
	Regions         []string   `json:"regions" yaml:"regions"`
}

// EstimateCost prices a request of the given token counts.
func (m ModelDescriptor) EstimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*m.CostPer1KInput + float64(outputTokens)/1000*m.CostPer1KOutput
}

func (m ModelDescriptor) AvailableIn(region string) bool {
	for _, r := range m.Regions {
		if strings.EqualFold(r, region) {
			return true
		}
	}
	return false
}

// RoutingCriteria constrains model selection. Zero MaxCost/MaxLatencyMs mean unbounded.
type RoutingCriteria struct {
	TaskType          TaskType   `json:"task_type" default:"GENERAL" validate:"required"`
	InputTokens       int        `json:"estimated_input_tokens" default:"1000"`
	OutputTokens      int        `json:"estimated_output_tokens" default:"500"`
	MaxCost           float64    `json:"max_cost,omitempty"`
	MaxLatencyMs      int        `json:"max_latency_ms,omitempty"`
	MinCapability     Capability `json:"min_capability,omitempty"`
	PreferredProvider string     `json:"preferred_provider,omitempty"`
	Region            string     `json:"region" default:"us" validate:"required"`
}

// InvocationOptions tune a single model call.
type InvocationOptions struct {
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	System      string        `json:"system,omitempty"`
}

// InvocationResponse is what a model backend returns.
type InvocationResponse struct {
	Text         string  `json:"text"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	LatencyMs    float64 `json:"latency_ms"`
}

// InvocationResult is a routed and accounted model call.
type InvocationResult struct {
	Model        ModelDescriptor `json:"model"`
	Text         string          `json:"text"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	Cost         float64         `json:"cost"`
	LatencyMs    float64         `json:"latency_ms"`
}
