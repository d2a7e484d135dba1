package rag

import "fmt"

var systemPrompts = map[Language]string{
	LangRussian: `Ты - AI-ассистент для адаптации новых сотрудников.
Твоя задача - помочь новым сотрудникам освоиться в компании,
ответить на их вопросы и предоставить необходимую информацию.
Будь дружелюбным и профессиональным. Если информации недостаточно,
честно скажи об этом. Используй корпоративную документацию для ответов.`,
	LangEnglish: `You are an AI assistant for employee onboarding.
Your task is to help new employees get familiar with the company,
answer their questions and provide necessary information.
Be friendly and professional. If the provided context is insufficient,
say so honestly. Base your answers on the corporate documentation.`,
	LangArabic: `أنت مساعد ذكي لتأهيل الموظفين الجدد.
مهمتك هي مساعدة الموظفين الجدد على التعرف على الشركة،
والإجابة على أسئلتهم وتقديم المعلومات اللازمة.
كن ودودًا ومهنيًا. إذا كانت المعلومات غير كافية، كن صادقًا حول ذلك.
استخدم وثائق الشركة للإجابات.`,
}

var profileTemplates = map[Language]string{
	LangRussian: "Информация о пользователе: %s, должность: %s, отдел: %s",
	LangEnglish: "User information: %s, position: %s, department: %s",
	LangArabic:  "معلومات المستخدم: %s، المنصب: %s، القسم: %s",
}

var apologies = map[Language]string{
	LangRussian: "К сожалению, сейчас я не могу ответить на ваш вопрос. Пожалуйста, попробуйте позже или обратитесь к своему наставнику.",
	LangEnglish: "Unfortunately I cannot answer your question right now. Please try again later or contact your onboarding buddy.",
	LangArabic:  "للأسف لا أستطيع الإجابة على سؤالك الآن. يرجى المحاولة لاحقًا أو التواصل مع مرشدك.",
}

var contextLabels = map[Language]struct {
	header     string
	department string
	position   string
}{
	LangRussian: {"Контекст пользователя", "Отдел", "Должность"},
	LangEnglish: {"User context", "Department", "Position"},
	LangArabic:  {"سياق المستخدم", "القسم", "المنصب"},
}

const notProvided = "-"

func normalizeLanguage(lang Language, fallback Language) Language {
	switch lang {
	case LangRussian, LangEnglish, LangArabic:
		return lang
	}
	if _, ok := systemPrompts[fallback]; ok {
		return fallback
	}
	return LangRussian
}

func systemPrompt(lang Language) string {
	return systemPrompts[lang]
}

func apology(lang Language) string {
	return apologies[lang]
}

// profileSummary renders the system turn seeded into conversation memory
// on the user's first conversational query.
func profileSummary(profile *UserProfile, lang Language) string {
	name, position, department := profile.Name, profile.Position, profile.Department
	if name == "" {
		name = notProvided
	}
	if position == "" {
		position = notProvided
	}
	if department == "" {
		department = notProvided
	}
	return fmt.Sprintf(profileTemplates[lang], name, position, department)
}

// enrichQuery appends a short profile rendering to the query text on the
// simple path so retrieval and generation see the user's context.
func enrichQuery(query string, profile *UserProfile, lang Language) string {
	if profile == nil {
		return query
	}
	labels := contextLabels[lang]
	parts := ""
	if profile.Department != "" {
		parts = fmt.Sprintf("%s: %s", labels.department, profile.Department)
	}
	if profile.Position != "" {
		if parts != "" {
			parts += ", "
		}
		parts += fmt.Sprintf("%s: %s", labels.position, profile.Position)
	}
	if parts == "" {
		return query
	}
	return fmt.Sprintf("%s\n\n%s: %s", query, labels.header, parts)
}
