package recurring

import (
	"fmt"

	"github.com/finsentry/finsentry/internal/model"
)

// minGroupSize is the smallest group any pass emits. A single transaction
// can never be recurring.
const minGroupSize = 2

// Group is a set of transactions that plausibly represent the same
// recurring obligation, tagged with the pass that produced it.
type Group struct {
	Key          string
	MerchantName string
	Transactions []model.Transaction
	Pass         int
}

// PassMultiplier scales a group's final confidence by the reliability of
// the signal that produced it. Bank-supplied partner and merchant
// identifiers are far stronger recurrence signals than free-text
// description matching; blending them without a ceiling would let weak
// signals dilute strong ones.
func PassMultiplier(pass int) float64 {
	switch pass {
	case 1:
		return 1.0
	case 2:
		return 0.85
	case 3:
		return 0.65
	default:
		return 0
	}
}

// GroupTransactions partitions transactions into candidate groups using
// three passes in strictly decreasing reliability order. Each transaction
// is claimed by at most one pass. Input order (ascending date) determines
// group order, so results are deterministic.
func GroupTransactions(txns []model.Transaction) []Group {
	claimed := make(map[int64]bool, len(txns))
	var groups []Group

	groups = append(groups, groupByPartner(txns, claimed)...)
	groups = append(groups, groupByMerchant(txns, claimed)...)
	groups = append(groups, groupByDescription(txns, claimed)...)

	return groups
}

// groupByPartner is pass 1: exact key over (partner IBAN, partner name,
// payment method). Requires both IBAN and name to be present.
func groupByPartner(txns []model.Transaction, claimed map[int64]bool) []Group {
	byKey := make(map[string][]model.Transaction)
	var keyOrder []string

	for _, txn := range txns {
		iban := normalizeIdentity(txn.PartnerIBAN)
		name := normalizeIdentity(txn.PartnerName)
		if iban == "" || name == "" {
			continue
		}
		key := fmt.Sprintf("partner:%s:%s:%s", iban, name, normalizeIdentity(txn.PaymentMethod))
		if _, seen := byKey[key]; !seen {
			keyOrder = append(keyOrder, key)
		}
		byKey[key] = append(byKey[key], txn)
	}

	var groups []Group
	for _, key := range keyOrder {
		members := byKey[key]
		if len(members) < minGroupSize {
			continue
		}
		for _, txn := range members {
			claimed[txn.ID] = true
		}
		groups = append(groups, Group{
			Key:          key,
			Pass:         1,
			MerchantName: members[0].PartnerName,
			Transactions: members,
		})
	}
	return groups
}

// groupByMerchant is pass 2: for transactions unclaimed by pass 1, greedy
// clustering over (merchant name, payment method, card brand) where
// merchant names match exactly, by containment, or with ≥70% word overlap.
func groupByMerchant(txns []model.Transaction, claimed map[int64]bool) []Group {
	var pool []model.Transaction
	for _, txn := range txns {
		if !claimed[txn.ID] && normalizeIdentity(txn.MerchantName) != "" {
			pool = append(pool, txn)
		}
	}

	var groups []Group
	used := make(map[int]bool, len(pool))

	for i, seed := range pool {
		if used[i] {
			continue
		}
		members := []model.Transaction{seed}
		used[i] = true

		for j := i + 1; j < len(pool); j++ {
			if used[j] {
				continue
			}
			other := pool[j]
			if normalizeIdentity(other.PaymentMethod) != normalizeIdentity(seed.PaymentMethod) {
				continue
			}
			if normalizeIdentity(other.CardBrand) != normalizeIdentity(seed.CardBrand) {
				continue
			}
			if merchantsMatch(seed.MerchantName, other.MerchantName) {
				members = append(members, other)
				used[j] = true
			}
		}

		if len(members) < minGroupSize {
			continue
		}
		for _, txn := range members {
			claimed[txn.ID] = true
		}
		key := fmt.Sprintf("merchant:%s:%s:%s",
			normalizeIdentity(seed.MerchantName),
			normalizeIdentity(seed.PaymentMethod),
			normalizeIdentity(seed.CardBrand))
		groups = append(groups, Group{
			Key:          key,
			Pass:         2,
			MerchantName: seed.MerchantName,
			Transactions: members,
		})
	}
	return groups
}

// groupByDescription is pass 3, the fallback: greedy clustering of the
// remaining transactions by normalized description with ≥50% word overlap.
func groupByDescription(txns []model.Transaction, claimed map[int64]bool) []Group {
	var pool []model.Transaction
	for _, txn := range txns {
		if !claimed[txn.ID] {
			pool = append(pool, txn)
		}
	}

	var groups []Group
	used := make(map[int]bool, len(pool))

	for i, seed := range pool {
		if used[i] {
			continue
		}
		seedDesc := NormalizeDescription(seed.Description)
		members := []model.Transaction{seed}
		used[i] = true

		for j := i + 1; j < len(pool); j++ {
			if used[j] {
				continue
			}
			if descriptionsMatch(seedDesc, NormalizeDescription(pool[j].Description)) {
				members = append(members, pool[j])
				used[j] = true
			}
		}

		if len(members) < minGroupSize {
			continue
		}
		for _, txn := range members {
			claimed[txn.ID] = true
		}
		groups = append(groups, Group{
			Key:          seedDesc,
			Pass:         3,
			Transactions: members,
		})
	}
	return groups
}
