package mcpserver

// NoteFieldsContract describes the shape of archived notes and how a
// dropped file becomes one.
const NoteFieldsContract = `# Munin Note Fields Contract

Munin watches a drop folder for plain-text files. Once a file stops
changing, its content is sent to a language model that extracts the
note fields, and the result is stored in the archive keyed by a
SHA-256 fingerprint of the file content.

## Stored fields

` + "```" + `json
{
  "fingerprint": "hex SHA-256 of the dropped file content",
  "title":       "short human-readable title (required, non-empty)",
  "summary":     "one- or two-sentence summary",
  "tags":        ["lowercase", "keywords"],
  "content":     "cleaned-up full text of the note",
  "source_path": "path of the file inside the drop folder",
  "model":       "name of the model that produced the fields",
  "ingested_at": "UTC timestamp of the upsert"
}
` + "```" + `

## Rules

1. **Fingerprint is identity.** Two drops with byte-identical content
   are the same note; re-dropping unchanged content changes nothing.
2. **Title is required.** Extraction fails if the model returns an
   empty or missing title; such drops never reach the archive.
3. **Tags are always present** in stored notes, possibly as an empty
   list.
4. **Capture via capture_note.** Give it a file name with an accepted
   extension (` + "`" + `.txt` + "`" + ` by default) and the raw text; ingestion is
   asynchronous, so the note appears in list_notes after the quiet
   period and extraction finish.
5. **Encoding** is UTF-8 plain text. Markdown inside the content is
   preserved as-is but not interpreted.
`
