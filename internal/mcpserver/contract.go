package mcpserver

// NoteFormatContract describes the document layout and vault conventions
// that LLM consumers should follow when creating, updating or moving notes.
const NoteFormatContract = `# Vault Note Format Contract

The vault is organised with the PARA method. Every note lives under exactly
one of four top-level category directories:

- ` + "`projects/`" + `: efforts with a goal and an end date
- ` + "`areas/`" + `: ongoing responsibilities
- ` + "`resources/`" + `: reference material
- ` + "`archives/`" + `: anything inactive

Paths outside these directories are rejected.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # OPTIONAL – derived from the first "# " heading or the file name
created: 2025-01-15T09:00:00Z      # managed – set on create, never changed
modified: 2025-01-20T17:30:00Z     # managed – set on every write
tags: [tag-one, tag-two]           # OPTIONAL – list of strings
category: projects                 # OPTIONAL – overrides the directory's category
status: active                     # OPTIONAL – "draft" hides the note from published snapshots
priority: high                     # OPTIONAL
---

Body text in standard Markdown.

Use [[wikilinks]] to reference other notes (without .md extension).
Use [[target#heading]] to point at a section and [[target|alias]] for display text.
` + "```" + `

## Rules

1. **Pass metadata separately.** ` + "`create_note`" + ` and ` + "`update_note`" + ` take the
   body and the metadata as separate arguments; do not write a header block
   into the content yourself.
2. **Link targets** are matched against document paths without extension. A
   bare name (` + "`[[roadmap]]`" + `) matches any document whose path ends in
   ` + "`roadmap`" + `; add directories (` + "`[[projects/launch/roadmap]]`" + `) to disambiguate.
3. **Links to missing notes are allowed.** They show up in ` + "`get_broken_links`" + ` and
   resolve as soon as the target is created.
4. **Updates append by default.** Set ` + "`replace_content`" + ` to overwrite the body.
   Links dropped by a replacement are kept in a "## Preserved Links" section
   unless ` + "`preserve_links`" + ` is false.
5. **Move, don't recreate.** ` + "`move_note`" + ` rewrites every link pointing at the old
   path; deleting and recreating a note leaves those links broken.
6. **File paths** end with ` + "`.md`" + `, use forward slashes, and are UTF-8.

## Example

` + "```" + `markdown
---
title: Weekly standup 2025-01-20
tags: [meeting-notes, launch]
---

# Weekly standup 2025-01-20

## Action items

- Review the [[design-doc]]
- Update [[projects/launch/roadmap|the roadmap]]
` + "```" + `
`
