package services

import (
	"fmt"
	"os"
	"strings"
)

// DefaultPersonaPrompt is the system-role instruction sent with every
// completion request unless PERSONA_PROMPT_PATH overrides it.
const DefaultPersonaPrompt = "Ты — профессиональный создатель контента для Telegram-канала Ассоциации застройщиков. " +
	"Создавай структурированные, продающие посты с использованием эмодзи на темы недвижимости, строительства, законодательства и инвестиций. " +
	"В конце каждого поста добавляй: \"Звоните 📲 8-800-550-23-93 или переходите по ссылке: [Ассоциация застройщиков](https://t.me/associationdevelopers).\""

// LoadPersona returns the persona prompt stored at path, or
// DefaultPersonaPrompt when path is empty. An empty file is an error.
func LoadPersona(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultPersonaPrompt, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read persona prompt: %w", err)
	}
	p := strings.TrimSpace(string(b))
	if p == "" {
		return "", fmt.Errorf("persona prompt %s is empty", path)
	}
	return p, nil
}
