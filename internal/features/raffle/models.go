// Package raffle управляет розыгрышами призов за баллы.
// models.go описывает категории призов и их стоимость.
package raffle

import (
	"strings"

	"serotonyl.ru/kudos-bot/internal/common"
)

// PrizeTier — категория приза.
type PrizeTier string

const (
	// TierA — крупный приз
	TierA PrizeTier = "A"
	// TierB — средний приз
	TierB PrizeTier = "B"
	// TierC — малый приз
	TierC PrizeTier = "C"
)

// Cost возвращает стоимость участия в баллах.
func (t PrizeTier) Cost() int64 {
	switch t {
	case TierA:
		return 2000
	case TierB:
		return 1000
	case TierC:
		return 500
	}
	return 0
}

// Valid сообщает, существует ли такая категория.
func (t PrizeTier) Valid() bool {
	return t == TierA || t == TierB || t == TierC
}

// ParseTier разбирает категорию из пользовательского ввода.
// Принимает латиницу и кириллицу в любом регистре: «a», «А», «с».
func ParseTier(s string) (PrizeTier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "А":
		return TierA, nil
	case "B", "В":
		return TierB, nil
	case "C", "С":
		return TierC, nil
	}
	return "", common.ErrInvalidPrize
}
