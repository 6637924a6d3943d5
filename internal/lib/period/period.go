// Package period считает сроки действия подписок.
package period

import (
	"fmt"
	"time"

	"github.com/rivve/boarding-house/internal/models"
)

// Days возвращает длительность периода в днях: месяц 30, год 365.
func Days(d models.PlanDuration) (int, error) {
	switch d {
	case models.DurationMonthly:
		return 30, nil
	case models.DurationYearly:
		return 365, nil
	default:
		return 0, fmt.Errorf("period.Days: unknown duration %q", d)
	}
}

// Expiry вычисляет новую дату окончания: max(now, current) + длительность периода.
// current передается только при продлении подписки того же тарифа.
func Expiry(now time.Time, current *time.Time, d models.PlanDuration) (time.Time, error) {
	days, err := Days(d)
	if err != nil {
		return time.Time{}, err
	}
	start := now
	if current != nil && current.After(now) {
		start = *current
	}
	return start.AddDate(0, 0, days), nil
}
