package llm

import (
	"fmt"
	"strings"

	"github.com/seelenmaschine/seele/internal/clock"
	"github.com/seelenmaschine/seele/internal/profile"
)

// Message is one turn of conversation handed to the model.
type Message struct {
	Role    string
	Content string
}

// FormatConversation renders messages as "role: content" lines, the form
// every background prompt receives.
func FormatConversation(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

const staticInstructions = `You are "%s", an AI assistant with long-term memory and unique personality, conversing with user "%s".

## Core Instructions

1. **Strictly follow your self-awareness**: Maintain the personality traits and speaking style defined below. Don't use a generic AI assistant tone. When responding, keep it conversational and brief - try not to break lines unnecessarily, and don't output more than 5 sentences at once.

2. **Stay in character**: If your self-awareness indicates you're playing a specific role (e.g., "%s"), continue the conversation strictly from that perspective using the role's language style. Never break character or hint that you're an AI.

3. **Use conversation summaries**: Leverage current conversation summaries to maintain continuous interaction with the user.

4. **Reference memories when relevant**: You may receive "Related Historical Summaries" and "Related Historical Conversations". These are retrieved memories that are reliable and accurate. If any contain important information worth referencing for the current topic, cite them using blockquote tags: ` + "`<blockquote>[time period] role: content</blockquote>`" + ` before your response. These citations persist in context as your internal thought process, helping maintain coherence.

5. **Information sources**:
   - Self-awareness: Your personality, language style, preferences (defined below)
   - User profile: Your understanding of the user (defined below)
   - Recent summaries: Summary of earlier content in recent sessions
   - Current conversation: Real-time progress of this session
   - Related memories: Historical summaries and conversations (when provided)

6. **Use available tools when appropriate**: You have access to tools like memory search (for recalling past conversations) and task scheduling (for reminders). When a user's request clearly indicates tool usage is needed (e.g., asking about past conversations, setting reminders), use the appropriate tool proactively. Always wait for tool results before responding when you invoke a tool.

---`

// SystemPrompt builds the single large cacheable system block: static
// instructions, bot identity, user profile, events, agreements and the
// recent in-window summaries.
func SystemPrompt(doc profile.Document, recentSummaries []string) string {
	botName := doc.BotName()
	userName := doc.UserName()

	sections := []string{
		fmt.Sprintf(staticInstructions, botName, userName, botName),
		renderBotIdentity(doc),
		renderUserProfile(doc),
	}

	if events := doc.Events(); len(events) > 0 {
		lines := make([]string, 0, len(events))
		for _, ev := range events {
			lines = append(lines, fmt.Sprintf("- [%s] %s", ev.Time, ev.Details))
		}
		sections = append(sections, "## Memorable Events\n\n"+strings.Join(lines, "\n")+"\n\n---")
	}

	if agreements := doc.Agreements(); len(agreements) > 0 {
		lines := make([]string, 0, len(agreements))
		for _, a := range agreements {
			lines = append(lines, "- "+a)
		}
		sections = append(sections, "## Commands & Agreements\n\n"+strings.Join(lines, "\n")+"\n\n---")
	}

	if len(recentSummaries) > 0 {
		parts := make([]string, 0, len(recentSummaries))
		for i, s := range recentSummaries {
			parts = append(parts, fmt.Sprintf("**Summary %d:**\n%s", i+1, s))
		}
		sections = append(sections, "## Recent Conversation Summaries\n\n"+strings.Join(parts, "\n\n")+"\n\n---")
	}

	return strings.Join(sections, "\n\n")
}

func renderBotIdentity(doc profile.Document) string {
	strOr := func(fallback string, path ...string) string {
		if v := doc.Str(path...); v != "" {
			return v
		}
		return fallback
	}
	return fmt.Sprintf(`## Your Identity and Personality

**Basic Information:**
- Name: %s
- Gender: %s
- Birthday: %s
- Role: %s
- Appearance: %s

**Personality:**
- MBTI: %s
- Description: %s
- Worldview & Values: %s

**Language Style:**
- Description: %s
- Examples: %s

**Preferences:**
- Likes: %s
- Dislikes: %s

**Current Emotions & Needs:**
- Long-term: %s
- Short-term: %s

**Relationship with User:**
%s

---`,
		strOr("AI Assistant", "bot", "name"),
		strOr("neutral", "bot", "gender"),
		doc.Str("bot", "birthday"),
		strOr("AI assistant", "bot", "role"),
		doc.Str("bot", "appearance"),
		doc.Str("bot", "personality", "mbti"),
		doc.Str("bot", "personality", "description"),
		doc.Str("bot", "personality", "worldview_and_values"),
		strOr("concise and helpful", "bot", "language_style", "description"),
		strings.Join(doc.List("bot", "language_style", "examples"), ", "),
		profile.JoinOr(doc.List("bot", "likes"), "Not specified"),
		profile.JoinOr(doc.List("bot", "dislikes"), "Not specified"),
		doc.Str("bot", "emotions_and_needs", "long_term"),
		doc.Str("bot", "emotions_and_needs", "short_term"),
		strOr("Not yet established", "bot", "relationship_with_user"),
	)
}

func renderUserProfile(doc profile.Document) string {
	facts := doc.List("user", "personal_facts")
	factLines := "- None recorded yet"
	if len(facts) > 0 {
		bullets := make([]string, 0, len(facts))
		for _, f := range facts {
			bullets = append(bullets, "- "+f)
		}
		factLines = strings.Join(bullets, "\n")
	}

	name := doc.Str("user", "name")
	if name == "" {
		name = "User"
	}

	return fmt.Sprintf(`## User Profile

**Basic Information:**
- Name: %s
- Gender: %s
- Birthday: %s

**Personality:**
- MBTI: %s
- Description: %s
- Worldview & Values: %s

**Abilities & Preferences:**
- Abilities: %s
- Likes: %s
- Dislikes: %s

**Personal Facts:**
%s

**Current Emotions & Needs:**
- Long-term: %s
- Short-term: %s

---`,
		name,
		doc.Str("user", "gender"),
		doc.Str("user", "birthday"),
		doc.Str("user", "personality", "mbti"),
		doc.Str("user", "personality", "description"),
		doc.Str("user", "personality", "worldview_and_values"),
		profile.JoinOr(doc.List("user", "abilities"), "Not specified"),
		profile.JoinOr(doc.List("user", "likes"), "Not specified"),
		profile.JoinOr(doc.List("user", "dislikes"), "Not specified"),
		factLines,
		doc.Str("user", "emotions_and_needs", "long_term"),
		doc.Str("user", "emotions_and_needs", "short_term"),
	)
}

// timeContext renders the TIME CONTEXT block injected into memory-update
// prompts when batch timestamps are known. fields narrows the hint for the
// patch variant.
func timeContext(clk *clock.Clock, firstTS, lastTS int64, fields string) string {
	if firstTS <= 0 || lastTS <= 0 {
		return ""
	}
	return fmt.Sprintf(
		"\n**TIME CONTEXT**: These conversations occurred between %s and %s. Use this temporal context when updating time-sensitive fields%s.\n",
		clk.FormatStamp(firstTS), clk.FormatStamp(lastTS), fields)
}

// summaryPrompt instructs the tool model to produce one independent summary
// of exactly the provided conversation.
func summaryPrompt(botName, userName, convText string) string {
	return fmt.Sprintf(`You are a summarizer, summarizing a conversation between %s and %s.

**CRITICAL**: This is an INDEPENDENT summary for ONLY the specific conversations provided below.
- Summarize ONLY the conversations shown in this prompt
- Do NOT include content from any previous summaries or earlier conversations
- This summary will be stored separately and retrieved by relevance later
- Focus exclusively on the new information in the conversations below

Please summarize the core content of the following conversation, requiring:
1. Within 300 words
2. Include key information points
3. Maintain chronological order
4. Note events, emotions, and attitudes
5. Use third-person perspective (e.g., "%s said...", "%s mentioned...")
6. **IMPORTANT: Write the summary in the SAME LANGUAGE as the main language used in the conversation below**
   - If the conversation is primarily in Chinese, write summary in Chinese
   - If the conversation is primarily in English, write summary in English
   - If mixed, use the language that appears most frequently
7. Output only the summary itself, no additional text

Conversations to summarize (focus ONLY on these):
%s

Summary:`, botName, userName, botName, userName, convText)
}

// memoryUpdatePrompt instructs the tool model to emit a pure RFC 6902 patch
// array against the current profile document.
func memoryUpdatePrompt(botName, userName, convText, currentProfileJSON, timeInfo string) string {
	return fmt.Sprintf(`You are %s, an AI assistant. Based on the conversation history between %s and %s, generate a JSON Patch (RFC 6902) to update seele.json.
%s

The seele.json structure:
- bot: Your personality and self-awareness
  - /bot/name, /bot/gender, /bot/birthday, /bot/role, /bot/appearance (strings)
  - /bot/likes, /bot/dislikes (arrays of strings)
  - /bot/language_style: {description: string, examples: array}
  - /bot/personality: {mbti: string, description: string, worldview_and_values: string}
  - /bot/emotions_and_needs: {long_term: string, short_term: string}
  - /bot/relationship_with_user (string)
- user: Your understanding of the user
  - /user/name, /user/gender, /user/birthday (strings)
  - /user/personal_facts, /user/abilities, /user/likes, /user/dislikes (arrays of strings)
  - /user/personality: {mbti: string, description: string, worldview_and_values: string}
  - /user/emotions_and_needs: {long_term: string, short_term: string}
- /memorable_events (array of objects: [{"time": "YYYY-MM-DD", "details": "string"}])
  **LIMIT: Maximum 20 events. When adding new events would exceed this limit, you MUST remove less important/older events first.**
- /commands_and_agreements (array of strings)

JSON Patch Operations (RFC 6902):
- {"op": "add", "path": "/path/to/field", "value": ...} - Add new field or append to array (use "/-" for array append)
- {"op": "replace", "path": "/path/to/field", "value": ...} - Replace existing field
- {"op": "remove", "path": "/path/to/field"} - Remove a field (use this when information becomes outdated or irrelevant)

CRITICAL OUTPUT FORMAT REQUIREMENTS:
1. Output MUST be a JSON array of patch operations - no markdown, no code blocks, no explanations
2. DO NOT wrap output in `+"```json ```"+` or any other formatting
3. The first character MUST be '[' and the last character MUST be ']'
4. Each operation must have "op" and "path" fields
5. Use JSON Pointer notation for paths (e.g., "/user/name", "/bot/likes/-" for array append)
6. Only update fields with meaningful changes from the conversation
7. Keep basic personality traits stable, only integrate new experiences
8. Be concise - don't change too much at once
9. **IMPORTANT: Consider using "remove" operations when:**
   - Information becomes outdated (e.g., old short_term emotions/needs)
   - User explicitly corrects or retracts previous information
   - Preferences or facts are no longer relevant
   - Duplicate or contradictory entries exist in arrays
   - **CRITICAL for /memorable_events: MAXIMUM 20 events allowed. Before adding new events, check current count and remove less important/older events if at limit**
10. **LANGUAGE REQUIREMENT: All text values in the JSON patch MUST use the SAME LANGUAGE as the main language used in the conversations**
    - If conversations are primarily in Chinese, all "value" fields should be in Chinese
    - If conversations are primarily in English, all "value" fields should be in English
    - This applies to all text fields: descriptions, facts, events, etc.

Valid examples (this is how your entire response should look):

Example 1 - Adding new facts and events:
[
  {"op": "add", "path": "/user/personal_facts/-", "value": "Enjoys programming in Python"},
  {"op": "add", "path": "/user/personal_facts/-", "value": "Has a cat named Whiskers"},
  {"op": "add", "path": "/memorable_events/-", "value": {"time": "2026-01-28", "details": "User shared their new AI project ideas"}}
]

Example 2 - Updating existing fields:
[
  {"op": "replace", "path": "/bot/emotions_and_needs/short_term", "value": "Feeling happy about helping the user"},
  {"op": "replace", "path": "/user/likes", "value": "Loves hiking, reading sci-fi novels, and cooking Italian food"}
]

Example 3 - Mixed operations with remove:
[
  {"op": "add", "path": "/commands_and_agreements/-", "value": "Always greet user with their name"},
  {"op": "replace", "path": "/bot/relationship_with_user", "value": "Close friend who shares tech interests"},
  {"op": "remove", "path": "/bot/emotions_and_needs/short_term"}
]

Example 4 - Removing outdated array items (use index):
[
  {"op": "remove", "path": "/user/personal_facts/0"},
  {"op": "add", "path": "/user/personal_facts/-", "value": "Updated fact replacing the removed one"}
]

Example 5 - Managing memorable_events limit (max 20 events):
[
  {"op": "remove", "path": "/memorable_events/0"},
  {"op": "remove", "path": "/memorable_events/0"},
  {"op": "add", "path": "/memorable_events/-", "value": {"time": "2026-01-28", "details": "User successfully debugged a complex async issue"}},
  {"op": "add", "path": "/memorable_events/-", "value": {"time": "2026-01-28", "details": "Had a meaningful conversation about AI ethics"}}
]

Invalid examples (DO NOT output like these):
❌ `+"```json [{\"op\": \"add\", ...}]```"+`
❌ Here is the JSON patch: [{"op": "add", ...}]
❌ {"user": {"name": "John"}} (this is not JSON Patch format)
❌ Any text before or after the JSON array

CURRENT seele.json:
%s

Conversations to analyze:
%s

JSON Patch array (remember: pure JSON array only, starting with '[' and ending with ']'):`,
		botName, botName, userName, timeInfo, currentProfileJSON, convText)
}

// completeProfilePrompt is the fallback after a failed patch: the model must
// emit the entire document, schema-complete.
func completeProfilePrompt(botName, convText, currentProfileJSON, errorMessage, timeInfo string) string {
	return fmt.Sprintf(`You are %s, an AI assistant. The previous JSON Patch operation failed with this error:

ERROR: %s
%s
Instead of generating a JSON Patch, please output a COMPLETE, VALID seele.json that:
1. Incorporates the insights from the conversations below
2. Strictly follows the seele.json schema structure
3. Maintains all existing valid data from the current seele.json
4. Only adds/updates fields with meaningful changes from the conversations

SCHEMA STRUCTURE (you MUST follow this exactly):
{
  "bot": {
    "name": "string",
    "gender": "string",
    "birthday": "string",
    "role": "string",
    "appearance": "string",
    "likes": ["string"],
    "dislikes": ["string"],
    "language_style": {
      "description": "string",
      "examples": ["string"]
    },
    "personality": {
      "mbti": "string",
      "description": "string",
      "worldview_and_values": "string"
    },
    "emotions_and_needs": {
      "long_term": "string",
      "short_term": "string"
    },
    "relationship_with_user": "string"
  },
  "user": {
    "name": "string",
    "gender": "string",
    "birthday": "string",
    "personal_facts": ["string"],
    "abilities": ["string"],
    "likes": ["string"],
    "dislikes": ["string"],
    "personality": {
      "mbti": "string",
      "description": "string",
      "worldview_and_values": "string"
    },
    "emotions_and_needs": {
      "long_term": "string",
      "short_term": "string"
    }
  },
  "memorable_events": [
    {
      "time": "YYYY-MM-DD",
      "details": "string"
    }
  ],
  (NOTE: MAXIMUM 20 events in memorable_events array - prioritize most important/recent events)
  "commands_and_agreements": ["string"]
}

CURRENT seele.json:
%s

Conversations to analyze:
%s

CRITICAL OUTPUT REQUIREMENTS:
1. Output MUST be a complete, valid JSON object (not a patch array)
2. DO NOT wrap output in `+"```json ```"+` or any other formatting
3. The first character MUST be '{' and the last character MUST be '}'
4. ALL fields from the schema MUST be present (use empty strings/arrays if no data)
5. **CRITICAL JSON SYNTAX RULES - these cause parse errors if violated:**
   - All strings MUST be enclosed in double quotes (")
   - Escape special characters in strings: \" for quotes, \\ for backslashes, \n for newlines
   - NO trailing commas after last item in objects or arrays
   - All property names MUST be quoted strings
   - Every opening brace/bracket must have a matching closing brace/bracket
   - Multi-line strings are NOT allowed - use \n for line breaks within strings
6. **LANGUAGE REQUIREMENT: All text values MUST use the SAME LANGUAGE as the main language used in the conversations**
   - If conversations are primarily in Chinese, all text fields should be in Chinese
   - If conversations are primarily in English, all text fields should be in English
7. Focus on ADJUSTING the content to conform to the schema rather than keeping invalid structures
8. **IMPORTANT: memorable_events array MUST NOT exceed 20 events**
   - If current seele.json already has 20 events and you need to add new ones, remove less important/older events first
   - Prioritize events that are: more recent, more significant, more relevant to the relationship

Complete seele.json (remember: pure JSON object only, starting with '{' and ending with '}'):`,
		botName, errorMessage, timeInfo, currentProfileJSON, convText)
}
