package types

// Each feature result carries Cached, set when the payload was served from a
// CachedEntry rather than freshly computed. Results are owned by the caller.

// LanguageDetection is the result of detectLanguage.
type LanguageDetection struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
	Cached     bool    `json:"cached"`
}

// Translation is the result of translateMessage.
type Translation struct {
	MessageID        string `json:"messageId"`
	OriginalText     string `json:"originalText"`
	TranslatedText   string `json:"translatedText"`
	OriginalLanguage string `json:"originalLanguage"`
	TargetLanguage   string `json:"targetLanguage"`
	Cached           bool   `json:"cached"`
}

// CulturalContext is the result of analyzeCulturalContext.
type CulturalContext struct {
	HasContext  bool    `json:"hasContext"`
	Explanation string  `json:"explanation,omitempty"`
	Category    string  `json:"category,omitempty"`
	Confidence  float64 `json:"confidence"`
	Cached      bool    `json:"cached"`
}

// FormalityAnalysis is the result of analyzeFormality.
type FormalityAnalysis struct {
	Level          FormalityLevel `json:"level"`
	Confidence     float64        `json:"confidence"`
	Markers        []string       `json:"markers"`
	Explanation    string         `json:"explanation"`
	SuggestedLevel FormalityLevel `json:"suggestedLevel,omitempty"`
	Cached         bool           `json:"cached"`
}

// FormalityAdjustment is the result of adjustFormality.
type FormalityAdjustment struct {
	AdjustedText       string         `json:"adjustedText"`
	OriginalLevel      FormalityLevel `json:"originalLevel"`
	TargetLevel        FormalityLevel `json:"targetLevel"`
	ChangesExplanation string         `json:"changesExplanation"`
	Cached             bool           `json:"cached"`
}

// DetectedPhrase is one slang term, idiom or colloquialism found in a text.
type DetectedPhrase struct {
	Phrase   string   `json:"phrase"`
	Type     string   `json:"type"`
	Meaning  string   `json:"meaning"`
	Origin   string   `json:"origin"`
	Similar  []string `json:"similar"`
	Examples []string `json:"examples"`
}

// SlangDetection is the result of detectSlangIdioms.
type SlangDetection struct {
	Phrases []DetectedPhrase `json:"phrases"`
	Cached  bool             `json:"cached"`
}

// PhraseExplanation is the result of explainPhrase.
type PhraseExplanation struct {
	Meaning       string   `json:"meaning"`
	Origin        string   `json:"origin"`
	Examples      []string `json:"examples"`
	CulturalNotes string   `json:"culturalNotes"`
	Cached        bool     `json:"cached"`
}

// SmartReply is one suggested reply.
type SmartReply struct {
	Text string `json:"text"`
	Tone string `json:"tone"`
}

// SmartReplies is the result of generateSmartReplies.
type SmartReplies struct {
	Replies []SmartReply `json:"replies"`
	Cached  bool         `json:"cached"`
}

// StructuredData is the result of extractStructuredData. Type is empty when
// the message contains nothing actionable.
type StructuredData struct {
	MessageID   string  `json:"messageId"`
	Type        string  `json:"type,omitempty"`
	DateTime    string  `json:"datetime,omitempty"`
	Location    string  `json:"location,omitempty"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
	Cached      bool    `json:"cached"`
}

// AssistantResponse is the result of queryAssistant. Sources lists the
// message IDs used as retrieval context.
type AssistantResponse struct {
	Response string   `json:"response"`
	Sources  []string `json:"sources,omitempty"`
}

// ConversationSummary is the result of summarizeConversation.
type ConversationSummary struct {
	Summary      string `json:"summary"`
	MessageCount int    `json:"messageCount"`
}
