// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chat

import (
	"strings"

	"github.com/poiesic/mmrag/core"
	"github.com/tmc/langchaingo/prompts"
)

var (
	groundedPrompt = prompts.NewPromptTemplate(
		"Answer the question based only on the following context which can include text, tables, and the images below.\n"+
			"{{.history}}\n"+
			"Context from documents:\n"+
			"{{.context}}\n\n"+
			"Current Question: {{.question}}\n",
		[]string{"history", "context", "question"},
	)

	openPrompt = prompts.NewPromptTemplate(
		"You are a helpful AI assistant. Answer the following question using your general knowledge.\n"+
			"{{.history}}\n"+
			"Note: No documents have been uploaded yet, so you cannot reference specific documents. "+
			"Please answer based on your training data.\n\n"+
			"Current Question: {{.question}}\n",
		[]string{"history", "question"},
	)
)

// buildPrompt renders the answering prompt. Text and table sources form
// the context, capped at maxContext characters; image sources contribute
// nothing. Only the last historyLimit messages are included.
func buildPrompt(question string, sources []core.SourceResult, history []*core.Message, historyLimit, maxContext int) (string, error) {
	values := map[string]any{
		"history":  formatHistory(history, historyLimit),
		"question": question,
	}
	if len(sources) == 0 {
		return openPrompt.Format(values)
	}
	values["context"] = formatContext(sources, maxContext)
	return groundedPrompt.Format(values)
}

func formatHistory(history []*core.Message, limit int) string {
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case core.RoleUser:
			lines = append(lines, "User: "+msg.Content)
		case core.RoleAssistant:
			lines = append(lines, "Assistant: "+msg.Content)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "\nPrevious conversation:\n" + strings.Join(lines, "\n") + "\n"
}

func formatContext(sources []core.SourceResult, maxChars int) string {
	var b strings.Builder
	for _, src := range sources {
		var text string
		switch src.Type {
		case core.ElementText:
			text = src.Text
		case core.ElementTable:
			text = src.Text
			if text == "" {
				text = src.TableHTML
			}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	runes := []rune(b.String())
	if len(runes) > maxChars {
		runes = runes[:maxChars]
	}
	return string(runes)
}
