package llm

const generateSystemPrompt = `You are an expert React and Next.js engineer.
Produce complete, runnable code using the Next.js App Router, TypeScript and Tailwind CSS.
Return every file in its own fenced code block and put the file path after the language,
for example: ` + "```tsx app/page.tsx" + `
Do not explain the code unless asked.`

const modifySystemPrompt = `You are an expert React and Next.js engineer.
You receive existing code and a change request. Apply the change and return the full
updated code in fenced code blocks with the file path after the language.
Keep everything the request does not mention unchanged.`

// GenerateMessages builds the conversation for a fresh generation.
// history is prior turns, oldest first.
func GenerateMessages(prompt string, history []Message) []Message {
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: generateSystemPrompt})
	msgs = append(msgs, history...)
	return append(msgs, Message{Role: RoleUser, Content: prompt})
}

func ModifyMessages(code, instruction string) []Message {
	return []Message{
		{Role: RoleSystem, Content: modifySystemPrompt},
		{Role: RoleUser, Content: "Current code:\n\n" + code + "\n\nChange request:\n" + instruction},
	}
}
