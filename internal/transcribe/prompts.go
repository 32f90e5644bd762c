package transcribe

// System and user prompts for the two text-generation transforms. French
// deployments get French instructions; everything else gets English.

// formatSystemPrompt frames the model as an editor. Formatting is a
// presentation transform only — all factual content must survive.
const formatSystemPrompt = "You are a professional editor who formats transcribed text into well-structured documents."

const formatPromptEN = `Format this transcribed text into a structured, readable document. Include:
- Clear section headings (use markdown # syntax)
- Well-organized paragraphs
- Speaker labels if multiple speakers are detected
- Consistent formatting
Maintain all important details. Return the formatted text in markdown.`

const formatPromptFR = `Formate ce texte transcrit en un document structuré et lisible. Inclus :
- Des titres de sections clairs (utilise la syntaxe markdown #)
- Des paragraphes bien organisés
- Des étiquettes de locuteurs si plusieurs personnes parlent
- Une mise en forme cohérente
Conserve tous les détails importants. Retourne le texte formaté en markdown.`

const summarySystemPrompt = "You are an expert at summarizing complex discussions into clear, actionable points."

const summaryPromptEN = `Create a concise summary of this transcription. Include:
- Main key points (maximum 5)
- Important conclusions
- Decisions or actions to be taken (if mentioned)
Required format:
# Summary
## Key Points
[points list]
## Conclusions
[main conclusions]
## Actions
[actions if any]`

const summaryPromptFR = `Crée un résumé concis de cette transcription. Inclus :
- Les points clés principaux (maximum 5)
- Les conclusions importantes
- Les décisions ou actions à prendre (si mentionnées)
Format requis :
# Résumé
## Points Clés
[liste des points]
## Conclusions
[conclusions principales]
## Actions
[actions si présentes]`

// formatPrompt returns the formatting instruction for the given language.
func formatPrompt(language string) string {
	if language == "fr" {
		return formatPromptFR
	}
	return formatPromptEN
}

// summaryPrompt returns the summarisation instruction for the given
// language.
func summaryPrompt(language string) string {
	if language == "fr" {
		return summaryPromptFR
	}
	return summaryPromptEN
}
