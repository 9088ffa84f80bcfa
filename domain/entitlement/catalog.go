package entitlement

import "github.com/RayBen445/ChatBot/domain/account"

// Capability is one row of the per-tier capability catalog shown to users.
type Capability struct {
	Name    string `json:"-"`
	Enabled bool   `json:"enabled"`
	Limit   string `json:"limit"`
}

func on(name, limit string) Capability  { return Capability{Name: name, Enabled: true, Limit: limit} }
func off(name, limit string) Capability { return Capability{Name: name, Enabled: false, Limit: limit} }

// Catalog lists the assistant capabilities per tier, in display order.
var Catalog = map[account.Tier][]Capability{
	account.TierFree: {
		on("codeGeneration", "Basic code snippets"),
		off("codeCompletion", "Pro feature"),
		on("debugging", "Basic debugging help"),
		on("codeExplanation", "Simple explanations"),
		off("codeRefactoring", "Pro feature"),
		on("syntaxCorrection", "Basic syntax help"),
		off("testGeneration", "Plus feature"),
		off("codeReview", "Pro feature"),
		on("apiUsage", "Basic API examples"),
		on("documentation", "Simple documentation"),
		off("languageTranslation", "Pro feature"),
		on("writing", "Basic writing assistance"),
		on("translation", "3 languages"),
		off("dataAnalysis", "Plus feature"),
		on("summarization", "Short summaries"),
	},
	account.TierPro: {
		on("codeGeneration", "Advanced code generation"),
		on("codeCompletion", "Intelligent completion"),
		on("debugging", "Advanced debugging"),
		on("codeExplanation", "Detailed explanations"),
		on("codeRefactoring", "Code optimization"),
		on("syntaxCorrection", "Advanced syntax help"),
		on("testGeneration", "Unit tests"),
		on("codeReview", "Comprehensive reviews"),
		on("apiUsage", "Advanced API integration"),
		on("documentation", "Professional docs"),
		on("languageTranslation", "10+ languages"),
		on("writing", "Professional writing"),
		on("translation", "20+ languages"),
		on("dataAnalysis", "Basic analytics"),
		on("summarization", "Detailed summaries"),
		on("deployment", "Deployment guidance"),
		on("regex", "Pattern generation"),
	},
	account.TierPlus: {
		on("codeGeneration", "Production-ready code"),
		on("codeCompletion", "AI-powered completion"),
		on("debugging", "Expert debugging"),
		on("codeExplanation", "In-depth analysis"),
		on("codeRefactoring", "Enterprise refactoring"),
		on("syntaxCorrection", "Multi-language support"),
		on("testGeneration", "Comprehensive test suites"),
		on("codeReview", "Expert code reviews"),
		on("apiUsage", "Custom integrations"),
		on("documentation", "Technical documentation"),
		on("languageTranslation", "All programming languages"),
		on("writing", "Expert writing assistance"),
		on("translation", "All world languages"),
		on("dataAnalysis", "Advanced analytics"),
		on("summarization", "Executive summaries"),
		on("deployment", "DevOps automation"),
		on("regex", "Complex pattern matching"),
		on("database", "Database design & queries"),
		on("security", "Security audits"),
		on("performance", "Performance optimization"),
		on("architecture", "System architecture"),
	},
}

// CapabilityEnabled reports whether tier has the named capability switched on.
func CapabilityEnabled(tier account.Tier, name string) bool {
	for _, c := range Catalog[tier] {
		if c.Name == name {
			return c.Enabled
		}
	}
	return false
}
