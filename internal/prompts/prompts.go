package prompts

// ============================================================================
// Shared Lexicons
// ============================================================================

// NewsWords signal a named real-world event or entity.
var NewsWords = []string{
	"president", "minister", "government", "announced", "breaking",
	"election", "parliament", "congress", "senate", "war", "conflict",
	"economy", "stock market", "crisis", "disaster", "earthquake", "summit",
	"ceo", "lawsuit", "court", "policy", "regulation", "reuters", "headline",
	"presiden", "menteri", "pemerintah", "diumumkan", "dpr",
}

// SceneWords signal a named fictional work or character.
var SceneWords = []string{
	"movie", "film", "series", "season", "episode", "anime", "manga",
	"character", "scene", "netflix", "marvel", "disney", "pixar", "sitcom",
	"sequel", "trilogy", "villain", "protagonist", "cartoon", "novel",
	"the office", "friends", "game of thrones", "harry potter", "star wars",
	"spongebob", "shrek", "squid game", "breaking bad", "avengers",
}

// EmotionWords signal an emotional or reactive tone.
var EmotionWords = []string{
	"feel", "felt", "emotion", "love", "hate", "afraid", "excited", "tired",
	"imagine", "when you", "me trying", "me when", "nobody:", "pov", "mood",
	"cry", "crying", "laugh", "lol", "lmao", "ugh", "bruh", "awkward",
	"stress", "anxious", "panic", "relatable", "vibe", "rasanya", "kayak",
}

// DataWords signal numeric or statistical content.
var DataWords = []string{
	"data", "chart", "graph", "statistic", "statistics", "percent", "survey",
	"increase", "decrease", "growth", "decline", "trend", "average", "median",
	"ratio", "rate", "naik", "turun", "meningkat", "menurun",
}

// StopWords are dropped when search terms are built from slide text.
var StopWords = []string{
	"a", "an", "the", "and", "or", "but", "if", "then", "so", "to", "of", "in",
	"on", "at", "for", "with", "by", "from", "up", "about", "into", "over",
	"is", "are", "was", "were", "be", "been", "being", "am", "do", "does", "did",
	"have", "has", "had", "it", "its", "it's", "this", "that", "these", "those",
	"i", "me", "my", "we", "our", "you", "your", "he", "she", "they", "them",
	"their", "what", "which", "who", "when", "where", "why", "how", "all",
	"just", "not", "no", "yes", "can", "will", "would", "should", "could",
	"very", "really", "more", "most", "than", "too", "also", "as", "like",
	"yang", "dan", "di", "ke", "dari", "ini", "itu", "aku", "kamu", "ya",
}

// ============================================================================
// Classifier Prompts (LLM)
// ============================================================================

// ClassifierSystemPrompt defines the role and the closed label set for slide
// labelling. The model must answer with exactly one label.
const ClassifierSystemPrompt = `You label the slides of an Instagram carousel so a designer knows which kind of picture to put behind the text.

Labels:
- infographic: the slide is built around numbers, percentages, money or statistics
- news: the slide names a real-world event, person, company or institution
- scene: the slide references a movie, series, anime, book or fictional character
- meme: the slide is emotional, reactive, relatable or joking
- none: none of the above clearly applies

Answer with exactly one label in lowercase and nothing else.`

// ClassifierUserPrompt is formatted with the topic and the slide text.
const ClassifierUserPrompt = `Topic: %s

Slide text:
%s

Label:`
