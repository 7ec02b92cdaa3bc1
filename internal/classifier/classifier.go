package classifier

import (
	"strings"

	"battle-tracker/internal/domain"
)

type Rule struct {
	Keywords []string
	Kind     domain.ResourceKind
}

// Rules is evaluated top to bottom and the first match wins. Do not reorder:
// labels such as "Precious metals" match more than one rule.
var Rules = []Rule{
	{Keywords: []string{"metal"}, Kind: domain.Metals},
	{Keywords: []string{"gold", "precious"}, Kind: domain.PreciousMetals},
	{Keywords: []string{"polymer"}, Kind: domain.Polymers},
	{Keywords: []string{"organic"}, Kind: domain.Organic},
	{Keywords: []string{"silicon"}, Kind: domain.Silicon},
	{Keywords: []string{"radioactive"}, Kind: domain.Radioactive},
	{Keywords: []string{"gem"}, Kind: domain.Gems},
	{Keywords: []string{"venom"}, Kind: domain.Venom},
}

// Classify maps an item label to its resource kind by case-insensitive
// substring match. A keyword never spans a word boundary. ok is false for
// labels no rule matches.
func Classify(label string) (kind domain.ResourceKind, ok bool) {
	name := strings.ToLower(label)
	for _, r := range Rules {
		for _, kw := range r.Keywords {
			if strings.Contains(name, kw) {
				return r.Kind, true
			}
		}
	}
	return "", false
}

// Distribute credits every pickup's full count to every participant; the
// yield is shared, not split.
func Distribute(participants []string, pickups []domain.PickupEvent) map[string]domain.PlayerYield {
	amounts := make(map[domain.ResourceKind]int64)
	unclassified := make(map[string]int64)
	for _, ev := range pickups {
		if kind, ok := Classify(ev.ItemLabel); ok {
			amounts[kind] += ev.Count
		} else {
			unclassified[ev.ItemLabel] += ev.Count
		}
	}

	yields := make(map[string]domain.PlayerYield, len(participants))
	for _, p := range participants {
		y := domain.PlayerYield{
			Amounts:      make(map[domain.ResourceKind]int64, len(amounts)),
			Unclassified: make(map[string]int64, len(unclassified)),
		}
		for k, v := range amounts {
			y.Amounts[k] = v
		}
		for label, v := range unclassified {
			y.Unclassified[label] = v
		}
		yields[p] = y
	}
	return yields
}
