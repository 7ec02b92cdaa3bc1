package classifier

import (
	"testing"

	"battle-tracker/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		label  string
		want   domain.ResourceKind
		wantOK bool
	}{
		{"MetalsOre", domain.Metals, true},
		{"metalsore", domain.Metals, true},
		{"METALSORE", domain.Metals, true},
		{"GoldBar", domain.PreciousMetals, true},
		{"goldbar", domain.PreciousMetals, true},
		{"Precious stones", domain.PreciousMetals, true},
		{"Polymers", domain.Polymers, true},
		{"Organic", domain.Organic, true},
		{"Silicon", domain.Silicon, true},
		{"Radioactive materials", domain.Radioactive, true},
		{"Gems", domain.Gems, true},
		{"Snake venom", domain.Venom, true},
		{"Iron Metal", domain.Metals, true},
		{"UnknownWidget", "", false},
		{"Strong Emitter", "", false},
		{"Big Emerald", "", false},
		{"Meta Layer", "", false},
		{"Poly Mer", "", false},
		{"unknownwidget", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			kind, ok := Classify(tc.label)
			require.Equal(t, tc.wantOK, ok)
			require.Equal(t, tc.want, kind)
		})
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	// matches both the metal and precious rules, metal is listed first
	kind, ok := Classify("Precious metals")
	require.True(t, ok)
	require.Equal(t, domain.Metals, kind)

	// gold is checked before gem
	kind, ok = Classify("Golden gem")
	require.True(t, ok)
	require.Equal(t, domain.PreciousMetals, kind)
}

func TestRulesCoverCatalog(t *testing.T) {
	kinds := make(map[domain.ResourceKind]bool)
	for _, r := range Rules {
		require.True(t, r.Kind.Valid())
		kinds[r.Kind] = true
	}
	require.Len(t, kinds, len(domain.ResourceCatalog))
}

func TestDistributeCreditsEveryParticipant(t *testing.T) {
	yields := Distribute(
		[]string{"Alice", "Bob"},
		[]domain.PickupEvent{
			{ItemLabel: "MetalsOre", Count: 50},
			{ItemLabel: "Metals", Count: 5},
			{ItemLabel: "UnknownWidget", Count: 2},
		},
	)

	require.Len(t, yields, 2)
	for _, player := range []string{"Alice", "Bob"} {
		y := yields[player]
		require.Equal(t, int64(55), y.Amounts[domain.Metals])
		require.Equal(t, map[string]int64{"UnknownWidget": 2}, y.Unclassified)
	}

	// yields must not share maps between players
	yields["Alice"].Amounts[domain.Metals] = 0
	require.Equal(t, int64(55), yields["Bob"].Amounts[domain.Metals])
}

func TestDistributeNoPickups(t *testing.T) {
	yields := Distribute([]string{"Alice"}, nil)
	require.Empty(t, yields["Alice"].Amounts)
	require.Empty(t, yields["Alice"].Unclassified)
}
