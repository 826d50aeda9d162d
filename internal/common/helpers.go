// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование чисел, календарные окна.
package common

import (
	"fmt"
	"math"
	"time"
)

// PluralizeLikes возвращает правильную форму слова «лайк» для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → "лайк" (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → "лайка" (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → "лайков" (0, 5-20, 25-30, 100, ...)
func PluralizeLikes(n int64) string {
	return pluralize(n, "лайк", "лайка", "лайков")
}

// PluralizePoints возвращает правильную форму слова «балл».
func PluralizePoints(n int64) string {
	return pluralize(n, "балл", "балла", "баллов")
}

// PluralizeMinutes возвращает правильную форму слова «минута».
func PluralizeMinutes(n int) string {
	return pluralize(int64(n), "минута", "минуты", "минут")
}

// pluralize выбирает форму слова для числа n по правилам русского языка.
func pluralize(n int64, one, few, many string) string {
	// Берём абсолютное значение для отрицательных чисел
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	// Единственное число: 1, 21, 31, 101 (но НЕ 11, 111)
	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}

	// Малое множественное: 2-4, 22-24, 32-34 (но НЕ 12-14)
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}

	// Большое множественное: 0, 5-20, 25-30, 100, ...
	return many
}

// FormatPoints форматирует количество баллов в читабельную строку.
// Пример: FormatPoints(150) → "150 баллов"
func FormatPoints(n int64) string {
	return fmt.Sprintf("%d %s", n, PluralizePoints(n))
}

// DayBounds возвращает границы календарных суток, в которые попадает момент t:
// [полночь, следующая полночь). Считается в часовом поясе t.
// Все дневные лимиты (лайки, дедупликация получателя) работают по этому окну.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// MonthBounds возвращает границы календарного месяца, в который попадает момент t:
// [первое число, первое число следующего месяца). Считается в часовом поясе t.
// Месячный потолок обмена лайков считается по этому окну.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" (день.месяц.год часы:минуты).
// Используется для отображения дат транзакций и розыгрышей.
func FormatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02.01.2006 15:04")
}
