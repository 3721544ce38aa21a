package extract

// noteSchemaJSON is the JSON schema sent as the "format" field of every
// generate request. It pins the model's answer to exactly the four
// ParsedNote fields.
const noteSchemaJSON = `{
  "type": "object",
  "properties": {
    "title":   {"type": "string"},
    "summary": {"type": "string"},
    "tags":    {"type": "array", "items": {"type": "string"}},
    "content": {"type": "string"}
  },
  "required": ["title", "summary", "tags", "content"],
  "additionalProperties": false
}`

// buildPrompt wraps raw note text in the extraction instruction.
func buildPrompt(text string) string {
	return "Extract structure from the following note text.\n" +
		"Return a JSON object with fields: " +
		"title (string), summary (string), tags (array of strings), content (string).\n" +
		"If a value is missing, use an empty string or empty array.\n\n" +
		"TEXT:\n" + text
}

// repairPrompt asks the model to fix its own broken output. Used at most
// once per drop, when the first answer is not parseable JSON.
func repairPrompt(broken string) string {
	return "Fix the following so it becomes valid JSON matching this schema exactly. " +
		"Output JSON only, no explanations.\n\n" +
		"SCHEMA:\n" + noteSchemaJSON + "\n\n" +
		"DATA:\n" + broken
}
