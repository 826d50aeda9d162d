// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// LogMessage логирует входящее сообщение: кто, откуда и первые 50 символов.
func LogMessage(message *tgbotapi.Message) {
	if message == nil || message.From == nil || message.Chat == nil {
		return
	}

	// Обрезаем по рунам: кириллица в UTF-8 двухбайтовая,
	// срез по байтам может разрезать символ пополам
	text := message.Text
	if r := []rune(text); len(r) > 50 {
		text = string(r[:50]) + "..."
	}

	log.WithFields(log.Fields{
		"user_id":  message.From.ID,
		"chat_id":  message.Chat.ID,
		"username": message.From.UserName,
		"text":     text,
	}).Debug("Входящее сообщение")
}
