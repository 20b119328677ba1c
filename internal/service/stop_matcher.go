package service

import "github.com/Zijian-Wang/tradesync/internal/domain"

// MatchStop returns the first order in orders that would close p: same
// symbol and the closing instruction for p's direction. When several stops
// qualify only the first is used. No match is a normal outcome.
func MatchStop(p domain.RawPosition, orders []domain.RawOrder) (domain.RawOrder, bool) {
	dir, _ := resolveSide(p)
	closing := dir.ClosingInstruction()
	for _, o := range orders {
		if o.Symbol == p.Symbol && o.Instruction == closing {
			return o, true
		}
	}
	return domain.RawOrder{}, false
}
