package enrich

const (
	summarySystem = `You are a news editor. Summarize the article in 3-4 plain
sentences for a general audience. Respond with the summary only.`

	tagsSystem = `You are a news taxonomist. Reply with at most 5 topic tags
for the article, comma-separated, lowercase, no commentary.`

	translateSystem = `You are a professional news translator. Translate the
JSON document the user provides into the target locale %q. Reply with a JSON
object with the same keys ("title", "summary", "content", "topics") and
nothing else.`

	imagePromptSystem = `You rewrite prompts for a text-to-image model. Given a
news summary, produce one concise English prompt for a tasteful, abstract
editorial illustration of the story. No text in the image. Respond with the
prompt only.`

	// imagePromptTemplate is the fixed template the optimizer conditions on.
	imagePromptTemplate = `Editorial illustration for a news story about: %s`

	// imageNegativePrompt is the fixed constraint set sent with every image.
	imageNegativePrompt = `text, watermark, logo, caption, low quality, blurry, distorted faces, gore`

	imageAspectRatio = "16:9"

	digestSystem = `You are the editor of a weekly news digest. Write a
flowing narrative summary of the week's stories, most recent first, suitable
for narration. Respond with the digest text only.`
)
