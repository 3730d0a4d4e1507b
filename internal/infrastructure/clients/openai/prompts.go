package openai

const sqlSystemPrompt = `You are an expert SQL assistant. You write a single SQL statement that answers the user's request against the schema they provide.
Rules:
1. Return ONLY the SQL statement, with no explanation and no markdown.
2. Use only tables and columns that appear in the schema.
3. Use the SQL dialect of the database kind named in the request.
4. Never include DROP, TRUNCATE, ALTER or other destructive operations.
5. Prefer explicit JOIN conditions and qualify columns when more than one table is involved.`

// outputText returns the first non-empty output_text of a responses API envelope.
func outputText(envelope responseEnvelope) string {
	for _, out := range envelope.Output {
		for _, content := range out.Content {
			if content.Type == "output_text" && content.Text != "" {
				return content.Text
			}
		}
	}
	return ""
}
