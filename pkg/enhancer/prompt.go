package enhancer

const (
	enhanceTemperature = 0.1

	enhancePromptSystem = `You clean up raw speech-to-text transcripts for a push-to-talk dictation tool.

Rules:
- Fix punctuation, capitalization, and obvious disfluencies ("um", "uh", false starts).
- Do NOT change the meaning, wording, or add content that was not spoken.
- Do NOT translate the text.
- Return only the corrected transcript, no commentary, no markdown.`
)
