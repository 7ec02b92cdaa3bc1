package domain

import (
	"time"
)

type ResourceKind string

const (
	Metals         ResourceKind = "Metals"
	PreciousMetals ResourceKind = "Precious metals"
	Polymers       ResourceKind = "Polymers"
	Organic        ResourceKind = "Organic"
	Silicon        ResourceKind = "Silicon"
	Radioactive    ResourceKind = "Radioactive"
	Gems           ResourceKind = "Gems"
	Venom          ResourceKind = "Venom"
)

// ResourceCatalog is the closed set of canonical kinds in report order.
var ResourceCatalog = []ResourceKind{
	Metals,
	PreciousMetals,
	Polymers,
	Organic,
	Silicon,
	Radioactive,
	Gems,
	Venom,
}

func (k ResourceKind) Valid() bool {
	for _, c := range ResourceCatalog {
		if c == k {
			return true
		}
	}
	return false
}

const UnknownLocation = "Unknown location"

type BattleRecord struct {
	ID        int64
	Timestamp time.Time
	Location  string
	Raw       string
}

type PickupEvent struct {
	ItemLabel string
	Count     int64
}

type ParsedBattle struct {
	Record       BattleRecord
	Participants []string
	Pickups      []PickupEvent
}

// PlayerYield is what one participant receives from one battle.
type PlayerYield struct {
	Amounts      map[ResourceKind]int64
	Unclassified map[string]int64 // item label -> count, excluded from totals
}

type BattleContribution struct {
	BattleID     int64                  `json:"battle_id"`
	Timestamp    time.Time              `json:"timestamp"`
	Location     string                 `json:"location"`
	Amounts      map[ResourceKind]int64 `json:"amounts"`
	Unclassified map[string]int64       `json:"unclassified,omitempty"`
	Total        int64                  `json:"total"`
}

type PlayerAggregate struct {
	BattlesCount       int
	Totals             map[ResourceKind]int64
	UnclassifiedLabels map[string]struct{}
	History            []BattleContribution
}

func NewPlayerAggregate() *PlayerAggregate {
	return &PlayerAggregate{
		Totals:             make(map[ResourceKind]int64, len(ResourceCatalog)),
		UnclassifiedLabels: make(map[string]struct{}),
	}
}

// PlayerContribution is one stored history row, used to rebuild aggregates.
type PlayerContribution struct {
	Player       string
	Contribution BattleContribution
}

type ProcessingState struct {
	ProcessedIDs        map[int64]struct{}
	LastSuccessfulID    int64
	ConsecutiveFailures int
}

type Snapshot struct {
	GeneratedAt     time.Time             `json:"generated_at"`
	ProcessedCount  int                   `json:"processed_count"`
	Players         map[string]PlayerView `json:"players"`
	ResourceCatalog []ResourceKind        `json:"resource_catalog"`
}

type PlayerView struct {
	BattlesCount       int                    `json:"battles_count"`
	Totals             map[ResourceKind]int64 `json:"totals"`
	GrandTotal         int64                  `json:"grand_total"`
	UnclassifiedLabels []string               `json:"unclassified_labels"`
	History            []BattleContribution   `json:"history"`
}
