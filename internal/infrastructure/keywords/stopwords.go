package keywords

var defaultStopWords = buildStopWords(
	// english
	"a", "about", "above", "after", "again", "against", "all", "am", "an", "and", "any", "are", "as",
	"at", "be", "because", "been", "before", "being", "below", "between", "both", "but", "by", "can",
	"could", "did", "do", "does", "doing", "down", "during", "each", "few", "for", "from", "further",
	"had", "has", "have", "having", "he", "her", "here", "hers", "him", "his", "how", "if", "in",
	"into", "is", "it", "its", "just", "me", "more", "most", "my", "no", "nor", "not", "of", "off",
	"on", "once", "only", "or", "other", "our", "ours", "out", "over", "own", "same", "she",
	"should", "so", "some", "such", "than", "that", "the", "their", "them", "then", "there", "these",
	"they", "this", "those", "through", "to", "too", "under", "until", "up", "very", "was", "we",
	"were", "what", "when", "where", "which", "while", "who", "whom", "why", "will", "with", "would",
	"you", "your", "yours",
	// italian
	"ad", "agli", "ai", "al", "alla", "alle", "allo", "anche", "che", "chi", "ci", "come", "con",
	"da", "dai", "dal", "dalla", "dalle", "degli", "dei", "del", "della", "delle", "dello", "di",
	"dove", "ed", "gli", "il", "io", "la", "le", "lo", "ma", "mi", "mia", "mio", "ne", "negli",
	"nei", "nel", "nella", "nelle", "non", "per", "più", "quale", "quando", "questa", "questo",
	"se", "si", "sia", "sono", "su", "sua", "sue", "sui", "sul", "sulla", "suo", "tra", "tu", "un",
	"una", "uno", "vi",
)

func buildStopWords(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}
