package features

import (
	"fmt"
	"strings"

	"github.com/scrypster/lingua/pkg/types"
)

// System prompts are strict JSON-only templates. Each names the exact object
// shape the matching result parser decodes.

const detectLanguageSystem = `TASK: Identify the language of the user's text.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks.

REQUIRED JSON STRUCTURE:
{"language":"<ISO 639-1 code, e.g. en, es, fr>","confidence":<number 0-1>}

RULES:
1. language is a lowercase 2 or 3 letter ISO 639 code
2. Use "und" if the language cannot be determined
3. confidence reflects how certain you are`

const translateSystem = `TASK: Translate the user's message into the target language.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks.

REQUIRED JSON STRUCTURE:
{"translatedText":"<translation>","originalLanguage":"<ISO 639-1 code of the source text>"}

RULES:
1. Preserve meaning, tone, emoji and formatting
2. Do not add explanations or notes
3. If the text is already in the target language, return it unchanged`

const culturalContextSystem = `TASK: Decide whether the text contains cultural references that a reader from the target culture may miss.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks.

REQUIRED JSON STRUCTURE:
{"hasContext":<true|false>,"explanation":"<short explanation>","category":"<idiom|humor|etiquette|reference|slang|holiday|other>","confidence":<number 0-1>}

RULES:
1. Set hasContext to false for plain, literal text and leave explanation empty
2. Keep the explanation under 3 sentences and write it in the target language`

const formalityAnalysisSystem = `TASK: Rate the formality of the text.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks.

FORMALITY LEVELS (ONLY these 5):
- very_formal
- formal
- neutral
- casual
- very_casual

REQUIRED JSON STRUCTURE:
{"level":"<level>","confidence":<number 0-1>,"markers":["<word or construction that signals the level>"],"explanation":"<one sentence>","suggestedLevel":"<level or empty>"}

RULES:
1. markers quote the text exactly
2. suggestedLevel is empty unless the text looks out of place for a chat message`

const formalityAdjustSystem = `TASK: Rewrite the text at a different formality level.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks.

REQUIRED JSON STRUCTURE:
{"adjustedText":"<rewritten text>","changesExplanation":"<what changed and why>"}

RULES:
1. Keep the meaning and the language of the original
2. Change only wording, register and politeness markers`

const slangSystem = `TASK: Find slang, idioms, colloquialisms and abbreviations in the text.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO ARRAY - MUST BE OBJECT.

PHRASE TYPES (ONLY these 4): slang, idiom, colloquialism, abbreviation

REQUIRED JSON STRUCTURE:
{"phrases":[{"phrase":"<exact text>","type":"<type>","meaning":"<plain meaning>","origin":"<short origin>","similar":["<similar expression>"],"examples":["<example sentence>"]}]}

RULES:
1. Return {"phrases":[]} when there is nothing to explain
2. phrase quotes the text exactly`

const explainPhraseSystem = `TASK: Explain the meaning of a phrase for a language learner.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks.

REQUIRED JSON STRUCTURE:
{"meaning":"<plain meaning>","origin":"<short origin>","examples":["<example sentence>"],"culturalNotes":"<when and with whom it is appropriate>"}`

const smartRepliesSystem = `TASK: Suggest short replies the user could send next in this conversation.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks.

TONES (ONLY these 5): casual, formal, friendly, neutral, enthusiastic

REQUIRED JSON STRUCTURE:
{"replies":[{"text":"<reply>","tone":"<tone>"}]}

RULES:
1. Return exactly 3 replies with different tones
2. Each reply is under 20 words
3. Write as "Me" replying to the latest message`

const structuredDataSystem = `TASK: Extract actionable structured data from a chat message.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks.

TYPES (ONLY these 5): event, reminder, task, location, contact

REQUIRED JSON STRUCTURE:
{"type":"<type or empty>","datetime":"<ISO 8601 or natural phrase>","location":"<place>","description":"<short description>","confidence":<number 0-1>}

RULES:
1. Leave type empty and confidence 0 when nothing is actionable
2. Omit fields that are not present in the message`

func detectLanguagePrompt(text string) string {
	return fmt.Sprintf("Text:\n%s", text)
}

func translatePrompt(text, sourceLang, targetLang string) string {
	var b strings.Builder
	if sourceLang != "" && sourceLang != "und" {
		fmt.Fprintf(&b, "Source language: %s\n", sourceLang)
	}
	fmt.Fprintf(&b, "Target language: %s\n\nMessage:\n%s", targetLang, text)
	return b.String()
}

func culturalContextPrompt(text, sourceLang, targetLang string) string {
	return fmt.Sprintf("Source language: %s\nTarget culture language: %s\n\nText:\n%s", sourceLang, targetLang, text)
}

func formalityAnalysisPrompt(text, lang string) string {
	return fmt.Sprintf("Language: %s\n\nText:\n%s", lang, text)
}

func formalityAdjustPrompt(text, lang string, from, to types.FormalityLevel) string {
	return fmt.Sprintf("Language: %s\nCurrent level: %s\nTarget level: %s\n\nText:\n%s", lang, from, to, text)
}

func slangPrompt(text, lang string) string {
	return fmt.Sprintf("Language: %s\n\nText:\n%s", lang, text)
}

func explainPhrasePrompt(phrase, lang, context string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\nPhrase: %s", lang, phrase)
	if context != "" {
		fmt.Fprintf(&b, "\n\nUsed in:\n%s", context)
	}
	return b.String()
}

// smartRepliesPrompt renders the conversation tail with the caller's own
// messages labelled "Me".
func smartRepliesPrompt(history []types.Message, userID, lang string) string {
	var b strings.Builder
	if lang != "" {
		fmt.Fprintf(&b, "Reply language: %s\n\n", lang)
	} else {
		b.WriteString("Reply in the language of the conversation.\n\n")
	}
	b.WriteString("Conversation:\n")
	for _, m := range history {
		who := "Them"
		if m.SenderID == userID {
			who = "Me"
		}
		fmt.Fprintf(&b, "%s: %s\n", who, m.Text)
	}
	return b.String()
}

func structuredDataPrompt(text, lang string) string {
	return fmt.Sprintf("Language: %s\n\nMessage:\n%s", lang, text)
}
