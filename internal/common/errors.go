// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import (
	"errors"
	"fmt"
)

// Ошибки валидации входных данных
var (
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrInvalidPrize — неизвестная категория приза (не A/B/C)
	ErrInvalidPrize = errors.New("выберите категорию приза: A, B или C")
)

// Ошибки лайков
var (
	// ErrSelfLike — попытка отправить лайк самому себе
	ErrSelfLike = errors.New("нельзя отправить лайк самому себе")
	// ErrReceiverNotFound — получатель лайка не найден в базе
	ErrReceiverNotFound = errors.New("получатель не найден")
	// ErrDailyCapReached — дневной лимит лайков исчерпан
	ErrDailyCapReached = errors.New("лимит лайков на сегодня исчерпан")
	// ErrAlreadySentToday — этому человеку лайк сегодня уже отправлен
	ErrAlreadySentToday = errors.New("вы уже отправили лайк этому человеку сегодня")
)

// Ошибки обмена и баллов
var (
	// ErrNothingToConvert — нет лайков, которые можно обменять на баллы
	ErrNothingToConvert = errors.New("нет лайков для обмена")
	// ErrInsufficientBalance — баланс ушёл бы в минус
	ErrInsufficientBalance = errors.New("недостаточно баллов на счёте")
)

// Системные ошибки
var (
	// ErrActorNotFound — пользователь не найден в базе
	ErrActorNotFound = errors.New("пользователь не найден")
	// ErrContention — не удалось получить блокировку счёта за отведённое время.
	// Временная ошибка: операцию можно повторить целиком.
	ErrContention = errors.New("счёт занят другой операцией, попробуйте ещё раз")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
)

// CooldownError — между лайками одного отправителя должна пройти пауза.
// RemainingMinutes — сколько целых минут осталось ждать (округление вверх).
type CooldownError struct {
	RemainingMinutes int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("до следующего лайка осталось %d %s",
		e.RemainingMinutes, PluralizeMinutes(e.RemainingMinutes))
}

// MonthlyLimitError — обмен целиком отклонён: месячный потолок был бы превышен.
// Обмен никогда не урезается до остатка — это решение продукта, не баг.
type MonthlyLimitError struct {
	MonthlyLimit       int64 // Потолок на месяц (баллы)
	AlreadyConverted   int64 // Сколько уже обменяно в этом месяце
	RemainingLimit     int64 // Сколько баллов ещё доступно
	MaxLikesCanConvert int64 // Сколько лайков влезает в остаток
}

func (e *MonthlyLimitError) Error() string {
	return fmt.Sprintf("месячный лимит обмена превышен: доступно ещё %d %s (%d %s)",
		e.RemainingLimit, PluralizePoints(e.RemainingLimit),
		e.MaxLikesCanConvert, PluralizeLikes(e.MaxLikesCanConvert))
}

// InsufficientPointsError — на розыгрыш не хватает баллов.
type InsufficientPointsError struct {
	Required int64 // Сколько стоит участие
	Current  int64 // Сколько есть на счету
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("недостаточно баллов: нужно %d, есть %d", e.Required, e.Current)
}
