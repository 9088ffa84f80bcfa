// Package chat shapes generation prompts and replies from an entitlement decision.
package chat

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/RayBen445/ChatBot/domain/entitlement"
)

// Message is one turn of prior conversation.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant model"`
	Content string `json:"content" validate:"max=20000"`
}

// capabilityPatterns detect what the user is asking for, in evaluation order.
var capabilityPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"codeGeneration", regexp.MustCompile(`(?i)(?:write|create|generate|build).{0,20}(?:code|function|class|component|script|program)`)},
	{"codeCompletion", regexp.MustCompile(`(?i)(?:complete|finish|auto[- ]complete).{0,10}(?:code|function)`)},
	{"debugging", regexp.MustCompile(`(?i)(?:debug|fix|error|bug|troubleshoot|why.{0,10}not.{0,10}work)`)},
	{"codeExplanation", regexp.MustCompile(`(?i)(?:explain|what does|how does|understand).{0,20}(?:code|function|this)`)},
	{"codeRefactoring", regexp.MustCompile(`(?i)(?:refactor|improve|optimize|clean up|rewrite)`)},
	{"syntaxCorrection", regexp.MustCompile(`(?i)(?:syntax|correct|fix).{0,10}(?:error|mistake)`)},
	{"testGeneration", regexp.MustCompile(`(?i)(?:test|unit test|testing|test case)`)},
	{"codeReview", regexp.MustCompile(`(?i)(?:review|feedback|critique|improve).{0,10}code`)},
	{"apiUsage", regexp.MustCompile(`(?i)(?:api|how to use|example|integration)`)},
	{"documentation", regexp.MustCompile(`(?i)(?:document|docs|documentation|comment|readme)`)},
	{"languageTranslation", regexp.MustCompile(`(?i)(?:convert|translate|port).{0,20}(?:from|to).{0,10}(?:python|java|javascript|c\+\+|php|ruby|go|rust|kotlin|swift)`)},
	{"deployment", regexp.MustCompile(`(?i)(?:deploy|deployment|production|publish|release)`)},
	{"database", regexp.MustCompile(`(?i)(?:sql|database|query|schema|table|mongodb|postgres)`)},
	{"regex", regexp.MustCompile(`(?i)(?:regex|regular expression|pattern|match)`)},
	{"writing", regexp.MustCompile(`(?i)(?:write|draft|create).{0,20}(?:email|document|report|article|blog|content)`)},
	{"translation", regexp.MustCompile(`(?i)(?:translate|translation).{0,20}(?:to|from|into|in)`)},
	{"dataAnalysis", regexp.MustCompile(`(?i)(?:analyze|analysis|data|chart|graph|statistics)`)},
	{"summarization", regexp.MustCompile(`(?i)(?:summarize|summary|tldr|key points|main idea)`)},
}

var capabilityInstructions = map[string]string{
	"codeGeneration":      "Focus on generating clean, efficient, well-documented code. Include explanations and best practices.",
	"debugging":           "Provide systematic debugging assistance. Identify potential issues, suggest fixes, and explain root causes.",
	"codeExplanation":     "Provide clear, line-by-line code explanations with context about purpose and functionality.",
	"codeRefactoring":     "Suggest improvements for code quality, performance, readability, and maintainability.",
	"testGeneration":      "Generate comprehensive test cases including edge cases, unit tests, and integration tests.",
	"documentation":       "Create clear, comprehensive documentation with examples and usage instructions.",
	"languageTranslation": "Accurately convert code between programming languages while maintaining functionality and best practices.",
	"writing":             "Focus on creating well-structured, professional content with appropriate tone and formatting.",
	"dataAnalysis":        "Provide thorough data analysis with insights, patterns, and actionable recommendations.",
}

var priorityInstructions = map[entitlement.Priority]string{
	entitlement.PriorityHigh:   "You are in premium mode - provide comprehensive, expert-level responses with advanced insights, multiple approaches, and production-ready solutions.",
	entitlement.PriorityMedium: "You are in pro mode - provide detailed responses with good examples, explanations, and practical solutions.",
	entitlement.PriorityLow:    "Provide helpful and accurate responses. Keep responses informative but concise.",
}

const persona = "You are MindBot AI, an advanced AI assistant with extensive capabilities across development, writing, analysis, and creative tasks."

// UpgradeHint is appended to truncated low-priority replies.
const UpgradeHint = "Upgrade to Pro for longer, more detailed responses!"

// Detect returns the names of capabilities the message appears to ask for.
// This is a PURE function.
func Detect(message string) []string {
	var found []string
	for _, p := range capabilityPatterns {
		if p.re.MatchString(message) {
			found = append(found, p.name)
		}
	}
	return found
}

// Profile identifies the user to the model.
type Profile struct {
	DisplayName string
	Email       string
}

// Name returns the display name, or the email local part when no name is set.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if i := strings.Index(p.Email, "@"); i > 0 {
		return p.Email[:i]
	}
	return ""
}

// Build renders the full prompt for one turn.
// Only the last ContextMessages turns of history are included.
// This is a PURE function.
func Build(message string, history []Message, profile Profile, d entitlement.Decision) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString(" ")

	if name := profile.Name(); name != "" {
		fmt.Fprintf(&b, "The user's name is %s. Address them by name when appropriate. ", name)
	}

	for _, c := range Detect(message) {
		if instr, ok := capabilityInstructions[c]; ok {
			b.WriteString(instr)
			b.WriteString(" ")
		}
	}

	if instr, ok := priorityInstructions[d.Priority]; ok {
		b.WriteString(instr)
	} else {
		b.WriteString(priorityInstructions[entitlement.PriorityLow])
	}
	b.WriteString(" ")

	if d.HasFeature(entitlement.FeatureAdvancedChat) {
		b.WriteString("Use advanced reasoning, provide step-by-step explanations, and consider multiple perspectives. ")
	}

	if window := HistoryWindow(history, d); len(window) > 0 {
		b.WriteString("\n\nPrevious conversation:\n")
		for _, m := range window {
			fmt.Fprintf(&b, "%s: %s\n", speaker(m.Role), m.Content)
		}
	}

	if d.ResponseBudgetChars > 0 {
		fmt.Fprintf(&b, "\n\nPlease keep your response under %d characters while being helpful and complete.\n", d.ResponseBudgetChars)
	}

	fmt.Fprintf(&b, "\nUser: %s\nAssistant:", message)
	return b.String()
}

// HistoryWindow returns the tail of history the decision allows.
func HistoryWindow(history []Message, d entitlement.Decision) []Message {
	limit := d.ContextMessages
	if limit <= 0 {
		limit = 5
	}
	if d.HasFeature(entitlement.FeatureLongContext) && limit < 10 {
		limit = 10
	}
	if len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

func speaker(role string) string {
	if role == "user" {
		return "User"
	}
	return "Assistant"
}

// Truncate cuts reply to budget characters, marking the cut with "...".
// Low-priority replies that were cut get the upgrade hint appended.
// A budget of zero or less leaves the reply untouched.
// This is a PURE function.
func Truncate(reply string, budget int, priority entitlement.Priority) (string, bool) {
	runes := []rune(reply)
	if budget <= 0 || len(runes) <= budget {
		return reply, false
	}
	cut := budget - 3
	if cut < 0 {
		cut = 0
	}
	out := string(runes[:cut]) + "..."
	if priority == entitlement.PriorityLow {
		out += "\n\n" + UpgradeHint
	}
	return out, true
}
