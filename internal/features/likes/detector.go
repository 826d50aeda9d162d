// Package likes — detector.go определяет, содержит ли сообщение «спасибо».
// Ответ «спасибо» на чужое сообщение — второй способ отправить лайк,
// наравне с командой !лайк.
package likes

import "strings"

// IsThankYou проверяет, является ли текст «спасибо».
// Регистр не важен. Пунктуация в конце допускается.
func IsThankYou(text string) bool {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	cleaned = strings.TrimRight(cleaned, "!.,;:)")
	return cleaned == "спасибо"
}
