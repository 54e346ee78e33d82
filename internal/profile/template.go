package profile

func emptyPersonality() map[string]any {
	return map[string]any{
		"mbti":                 "",
		"description":          "",
		"worldview_and_values": "",
	}
}

func emptyEmotions() map[string]any {
	return map[string]any{
		"long_term":  "",
		"short_term": "",
	}
}

// defaultDocument builds the starter profile used when no seele.json exists.
// Everything except the configured names starts empty so the first profile
// updates fill it in from real conversation.
func defaultDocument(botName, userName string) Document {
	return Document{
		"bot": map[string]any{
			"name":       botName,
			"gender":     "",
			"birthday":   "",
			"role":       "AI assistant",
			"appearance": "",
			"likes":      []any{},
			"dislikes":   []any{},
			"language_style": map[string]any{
				"description": "concise and helpful",
				"examples":    []any{},
			},
			"personality":            emptyPersonality(),
			"emotions_and_needs":     emptyEmotions(),
			"relationship_with_user": "",
		},
		"user": map[string]any{
			"name":               userName,
			"gender":             "",
			"birthday":           "",
			"personal_facts":     []any{},
			"abilities":          []any{},
			"likes":              []any{},
			"dislikes":           []any{},
			"personality":        emptyPersonality(),
			"emotions_and_needs": emptyEmotions(),
		},
		"memorable_events":        []any{},
		"commands_and_agreements": []any{},
	}
}
