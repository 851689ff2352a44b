package analysis

import "strings"

// Keyword tables driving the rule classifiers. Matching is substring-based
// over lowercased text, so multi-word phrases are allowed.
var (
	greetingWords = []string{"hi", "hello", "hey", "morning", "evening", "yo"}

	learningPhrases = []string{
		"how do", "how does", "how can i", "explain", "teach me",
		"what is", "what are", "help me understand", "learn",
	}

	emotionalPhrases = []string{
		"i feel", "i'm feeling", "im feeling", "frustrated", "frustrating",
		"excited", "love this", "hate this", "annoyed", "overwhelmed",
	}

	taskPhrases = []string{
		"can you", "could you", "please", "fix", "write", "create",
		"build", "add", "update", "remove",
	}

	frustrationWords = []string{
		"frustrated", "frustrating", "annoyed", "annoying", "stuck",
		"broken", "not working", "fails again", "ugh", "argh",
	}

	excitementWords = []string{
		"awesome", "amazing", "excellent", "love", "fantastic", "great news",
		"finally works", "excited",
	}

	curiosityWords = []string{"curious", "wonder", "wondering", "interesting", "why does", "why is"}

	calmWords = []string{"thanks", "thank you", "appreciate", "no rush", "whenever"}

	technicalWords = []string{
		"api", "error", "bug", "config", "database", "deploy",
		"server", "test", "build", "race", "deadlock", "panic",
	}

	focusPhrases = []string{
		"deadline", "finish", "implement", "continue", "next step",
		"let's get", "back to", "where were we",
	}

	explorePhrases = []string{
		"what if", "could we", "alternative", "options",
		"curious", "explore", "brainstorm",
	}

	collaborativePhrases = []string{"we could", "let's", "lets", "together", "our "}

	expressivePhrases = []string{"!", "so cool", "wow", "omg"}
)

// topicOrder fixes iteration order for topic extraction; map iteration
// would make Topics nondeterministic.
var topicOrder = []string{"coding", "debugging", "learning", "planning", "feelings"}

var topicWords = map[string][]string{
	"coding":    {"code", "function", "api", "build", "implement", "refactor"},
	"debugging": {"bug", "error", "broken", "crash", "debug", "stack trace", "panic"},
	"learning":  {"learn", "explain", "understand", "teach", "tutorial"},
	"planning":  {"plan", "roadmap", "deadline", "milestone", "schedule"},
	"feelings":  {"feel", "frustrated", "excited", "happy", "tired", "overwhelmed"},
}

// containsAny reports whether lowercased text contains any of the phrases.
func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// equalsAny reports whether word is exactly one of words.
func equalsAny(word string, words []string) bool {
	for _, w := range words {
		if word == w {
			return true
		}
	}
	return false
}

// countMatches counts how many phrases appear in lowercased text.
func countMatches(lower string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			n++
		}
	}
	return n
}

// matchTopics returns the matched topics in topicOrder.
func matchTopics(lower string) []string {
	var topics []string
	for _, topic := range topicOrder {
		if containsAny(lower, topicWords[topic]) {
			topics = append(topics, topic)
		}
	}
	return topics
}

// firstWord returns the first whitespace-separated token of lowercased text.
func firstWord(lower string) string {
	fields := strings.Fields(lower)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ".,!?")
}
