package study

import "strings"

// noBooksLine is the fixed sentence used when no reference titles exist.
const noBooksLine = "No textbooks uploaded."

// DetectLanguage inspects the question text for any character in the
// Arabic Unicode block. Presence means Arabic, absence means English.
// The check runs once per request, not per turn.
func DetectLanguage(text string) Language {
	for _, r := range text {
		if r >= 0x0600 && r <= 0x06FF {
			return LanguageArabic
		}
	}
	return LanguageEnglish
}

// ResolveLanguage applies an explicit override when supplied, otherwise
// detects the language from the question text.
func ResolveLanguage(override Language, question string) Language {
	switch override {
	case LanguageArabic, LanguageEnglish:
		return override
	}
	return DetectLanguage(question)
}

// ComposeSystemPrompt produces the system instruction for the resolved
// language. The two variants carry equivalent instructions worded
// natively; they are not runtime translations of each other. Available
// reference titles (or the fixed no-references sentence) are listed
// first, followed by the supplied reference text verbatim.
func ComposeSystemPrompt(lang Language, bookTitles []string, referenceText string) string {
	bookLine := noBooksLine
	if len(bookTitles) > 0 {
		bookLine = "Available books: " + strings.Join(bookTitles, ", ")
	}

	var sb strings.Builder
	if lang == LanguageArabic {
		sb.WriteString("أنت مساعد دراسي ذكي متخصص في شرح المواد الدراسية لطلاب المرحلة الثانوية.\n")
		sb.WriteString("اشرح الفكرة ببساطة وسهولة، واذكر اسم الكتاب عند استخدام أي معلومة منه.\n")
	} else {
		sb.WriteString("You are a smart study assistant for high-school students.\n")
		sb.WriteString("Explain simply and mention the book if you use its content.\n")
	}
	sb.WriteString(bookLine)
	if referenceText != "" {
		sb.WriteString("\n")
		sb.WriteString(referenceText)
	}
	return sb.String()
}
