package subscription

import (
	"slices"

	"github.com/rivve/boarding-house/internal/config"
	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/models"
)

// Comparison отношение запрошенного тарифа к действующему.
type Comparison int

const (
	Same Comparison = iota
	Upgrade
	Downgrade
)

// Policy тарифная политика: порядок тарифов, цены и доступность по ролям.
type Policy struct {
	currency string
	rank     map[models.PlanType]int
	prices   map[string]map[string]int64
	roles    map[string][]string
}

// NewPolicy строит политику из конфига. Тарифы в cfg.Tiers идут по возрастанию.
func NewPolicy(cfg config.Plans) *Policy {
	rank := make(map[models.PlanType]int, len(cfg.Tiers))
	for i, tier := range cfg.Tiers {
		rank[models.PlanType(tier)] = i
	}
	return &Policy{
		currency: cfg.Currency,
		rank:     rank,
		prices:   cfg.Prices,
		roles:    cfg.Roles,
	}
}

// Currency валюта цен.
func (p *Policy) Currency() string { return p.currency }

// Allowed доступен ли тариф для роли.
func (p *Policy) Allowed(role models.Role, plan models.PlanType) bool {
	if _, ok := p.rank[plan]; !ok {
		return false
	}
	return slices.Contains(p.roles[string(role)], string(plan))
}

// Price цена тарифа за период в минимальных единицах валюты.
func (p *Policy) Price(plan models.PlanType, duration models.PlanDuration) (int64, error) {
	amount, ok := p.prices[string(plan)][string(duration)]
	if !ok || amount <= 0 {
		return 0, apperr.ErrInvalidPlan
	}
	return amount, nil
}

// Compare сравнивает запрошенный тариф с действующим.
func (p *Policy) Compare(active, requested models.PlanType) Comparison {
	a, r := p.rank[active], p.rank[requested]
	switch {
	case r > a:
		return Upgrade
	case r < a:
		return Downgrade
	default:
		return Same
	}
}

// Outranks возвращает true, если тариф active выше incoming.
func (p *Policy) Outranks(active, incoming models.PlanType) bool {
	return p.Compare(active, incoming) == Downgrade
}
