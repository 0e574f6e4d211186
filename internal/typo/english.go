package typo

import "strings"

// prefixes and suffixes are the fixed affix sets the English filter
// strips before a second lexicon lookup (spec §4.I step 2), longest match
// first so "inter" is tried before "in".
var prefixes = sortByLengthDesc([]string{
	"anti", "auto", "de", "dis", "down", "extra", "hyper", "il", "im", "in",
	"ir", "inter", "mega", "mid", "mis", "non", "over", "out", "post", "pre",
	"pro", "re", "semi", "sub", "super", "tele", "trans", "ultra", "un", "under", "up",
})

var suffixes = sortByLengthDesc([]string{
	"able", "al", "ance", "ation", "ative", "ed", "en", "ence", "ent", "er",
	"es", "est", "ful", "ian", "ible", "ic", "ing", "ion", "ious", "ise",
	"ish", "ism", "ist", "ity", "ive", "ize", "less", "ly", "ment", "ness",
	"or", "ous", "s", "sion", "tion", "ty", "y",
})

func sortByLengthDesc(words []string) []string {
	out := append([]string(nil), words...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j]) > len(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Lexicon is the embedded English word list the filter checks exact and
// stripped forms against (spec §4.I step 2). It covers common function
// words and everyday vocabulary; it is deliberately small — this is a
// heuristic pre-filter to skip obviously-correct input, not a
// dictionary-completeness guarantee, and a miss here only means a
// correctly-spelled word falls through to the BK-tree lookup in step 3
// instead of being skipped in step 2.
type Lexicon struct {
	words map[string]bool
}

func NewLexicon(words []string) *Lexicon {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return &Lexicon{words: set}
}

func (l *Lexicon) Contains(word string) bool {
	return l.words[strings.ToLower(word)]
}

// IsEnglish implements spec §4.I step 2: exact match, or match after
// stripping the longest applicable prefix or suffix, or (for
// hyphen-separated input) every part individually in the lexicon.
func (l *Lexicon) IsEnglish(word string) bool {
	word = strings.ToLower(word)
	if strings.Contains(word, "-") {
		parts := strings.Split(word, "-")
		for _, p := range parts {
			if p == "" || !l.Contains(p) {
				return false
			}
		}
		return true
	}

	if l.Contains(word) {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(word, p) && len(word) > len(p) && l.Contains(word[len(p):]) {
			return true
		}
	}
	for _, s := range suffixes {
		if strings.HasSuffix(word, s) && len(word) > len(s) && l.Contains(word[:len(word)-len(s)]) {
			return true
		}
	}
	return false
}

// DefaultLexicon is a small embedded baseline vocabulary, used when no
// dataset-specific or larger lexicon is configured.
var DefaultLexicon = NewLexicon(defaultLexiconWords)

var defaultLexiconWords = []string{
	"a", "about", "above", "across", "act", "action", "add", "after", "again",
	"against", "age", "ago", "agree", "air", "all", "allow", "almost", "alone",
	"along", "already", "also", "although", "always", "among", "amount", "an",
	"and", "animal", "another", "answer", "any", "appear", "apply", "area",
	"around", "arrive", "art", "as", "ask", "at", "available", "away", "back",
	"bad", "base", "basic", "be", "bear", "beautiful", "because", "become",
	"bed", "before", "begin", "behind", "believe", "best", "better", "between",
	"big", "bird", "bit", "black", "blue", "boat", "body", "book", "both",
	"box", "boy", "break", "bring", "brother", "build", "business", "but",
	"buy", "by", "call", "came", "camera", "can", "car", "card", "care",
	"carry", "case", "cat", "cause", "cell", "center", "certain", "change",
	"check", "chance", "child", "choose", "city", "claim", "class", "clean",
	"clear", "close", "cloud", "code", "cold", "college", "color", "come",
	"common", "company", "compare", "complete", "computer", "condition",
	"consider", "contain", "content", "continue", "control", "cook", "cool",
	"cost", "could", "country", "course", "cover", "create", "cut", "dark",
	"data", "date", "day", "dead", "deal", "decide", "deep", "describe",
	"design", "detail", "determine", "develop", "did", "die", "difference",
	"different", "difficult", "direct", "do", "document", "does", "dog",
	"done", "door", "down", "draw", "dream", "drive", "drop", "during",
	"each", "early", "earth", "east", "easy", "eat", "economic", "edge",
	"effect", "eight", "either", "else", "employ", "end", "enough", "enter",
	"entire", "environment", "especially", "even", "evening", "event", "ever",
	"every", "example", "experience", "eye", "face", "fact", "fall", "family",
	"far", "fast", "father", "feel", "few", "field", "figure", "file", "fill",
	"final", "find", "fine", "finger", "finish", "fire", "first", "fish",
	"five", "floor", "fly", "focus", "follow", "food", "foot", "for", "force",
	"forget", "form", "forward", "found", "four", "free", "friend", "from",
	"front", "full", "function", "game", "garden", "general", "get", "girl",
	"give", "glass", "go", "goal", "good", "government", "great", "green",
	"ground", "group", "grow", "guess", "hair", "half", "hand", "happen",
	"happy", "hard", "have", "he", "head", "health", "hear", "heart", "heat",
	"heavy", "help", "her", "here", "high", "him", "himself", "history",
	"hit", "hold", "home", "hope", "horse", "hot", "hour", "house", "how",
	"however", "huge", "human", "hundred", "idea", "identify", "if", "image",
	"imagine", "important", "improve", "in", "include", "increase", "indeed",
	"indicate", "individual", "information", "inside", "instead", "interest",
	"into", "involve", "issue", "it", "item", "its", "job", "join", "just",
	"keep", "key", "kid", "kind", "know", "knowledge", "land", "language",
	"large", "last", "late", "later", "laugh", "law", "lay", "lead", "learn",
	"least", "leave", "left", "leg", "less", "let", "letter", "level", "lie",
	"life", "light", "like", "likely", "line", "list", "listen", "little",
	"live", "local", "long", "look", "lose", "lot", "love", "low", "machine",
	"main", "maintain", "major", "make", "man", "many", "market", "material",
	"matter", "may", "maybe", "me", "mean", "measure", "media", "medical",
	"meet", "member", "memory", "mention", "method", "middle", "might",
	"military", "million", "mind", "minute", "miss", "model", "modern",
	"moment", "money", "month", "more", "morning", "most", "mother", "mouth",
	"move", "movement", "movie", "much", "music", "must", "my", "myself",
	"name", "nation", "national", "natural", "nature", "near", "nearly",
	"necessary", "need", "network", "never", "new", "news", "next", "nice",
	"night", "no", "none", "nor", "north", "not", "note", "nothing", "notice",
	"now", "number", "occur", "of", "off", "offer", "office", "officer",
	"often", "oil", "old", "on", "once", "one", "only", "onto", "open",
	"operation", "opportunity", "option", "or", "order", "organization",
	"other", "our", "out", "outside", "over", "own", "owner", "page",
	"pain", "painting", "paper", "parent", "part", "particular", "partner",
	"party", "pass", "past", "patient", "pattern", "pay", "peace", "people",
	"per", "perform", "perhaps", "period", "person", "phone", "physical",
	"pick", "picture", "piece", "place", "plan", "plant", "play", "player",
	"point", "police", "policy", "political", "poor", "popular", "population",
	"position", "positive", "possible", "power", "practice", "prepare",
	"present", "pretty", "prevent", "price", "private", "probably", "problem",
	"process", "produce", "product", "program", "project", "property",
	"protect", "prove", "provide", "public", "pull", "purpose", "push",
	"put", "quality", "question", "quick", "quickly", "quite", "race", "radio",
	"raise", "range", "rate", "rather", "reach", "read", "ready", "real",
	"realize", "really", "reason", "receive", "recent", "recently",
	"recognize", "record", "red", "reduce", "region", "relate",
	"relationship", "religious", "remain", "remember", "remove", "report",
	"require", "research", "resource", "respond", "responsibility", "rest",
	"result", "return", "reveal", "rich", "right", "rise", "risk", "road",
	"rock", "role", "room", "rule", "run", "safe", "same", "save", "say",
	"scene", "school", "science", "season", "seat", "second", "section",
	"security", "see", "seek", "seem", "sell", "send", "sense", "series",
	"serious", "serve", "service", "set", "seven", "several", "shake",
	"share", "she", "short", "should", "shoulder", "show", "side", "sign",
	"similar", "simple", "simply", "since", "sing", "single", "sister",
	"sit", "site", "situation", "six", "size", "skill", "skin", "small",
	"smile", "so", "social", "society", "soldier", "some", "somebody",
	"someone", "something", "sometimes", "son", "song", "soon", "sort",
	"sound", "source", "south", "space", "speak", "special", "specific",
	"speed", "spend", "sport", "spring", "staff", "stage", "stand",
	"standard", "star", "start", "state", "statement", "station", "stay",
	"step", "still", "stock", "stop", "store", "story", "strategy", "street",
	"strong", "structure", "student", "study", "stuff", "style", "subject",
	"success", "successful", "such", "suddenly", "suffer", "suggest",
	"summer", "support", "sure", "surface", "system", "table", "take",
	"talk", "task", "tax", "teach", "teacher", "team", "technology", "tell",
	"ten", "tend", "term", "test", "text", "than", "thank", "that", "the",
	"their", "them", "themselves", "then", "theory", "there", "these",
	"they", "thing", "think", "third", "this", "those", "though", "thought",
	"thousand", "threat", "three", "through", "throughout", "throw", "thus",
	"time", "to", "today", "together", "too", "top", "total", "tough",
	"toward", "town", "trade", "traditional", "training", "travel", "treat",
	"treatment", "tree", "trial", "trip", "trouble", "true", "truth", "try",
	"turn", "two", "type", "under", "understand", "unit", "until", "up",
	"upon", "use", "usually", "value", "various", "very", "victim", "view",
	"violence", "visit", "voice", "vote", "wait", "walk", "wall", "want",
	"war", "watch", "water", "way", "we", "weapon", "wear", "week", "weight",
	"well", "west", "what", "whatever", "when", "where", "whether", "which",
	"while", "white", "who", "whole", "whom", "whose", "why", "wide", "wife",
	"will", "win", "wind", "window", "wish", "with", "within", "without",
	"woman", "wonder", "word", "work", "worker", "world", "worry", "would",
	"write", "writer", "wrong", "yard", "yeah", "year", "yes", "yet", "you",
	"young", "your", "yourself",
}
