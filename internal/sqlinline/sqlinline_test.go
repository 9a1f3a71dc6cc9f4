package sqlinline

import (
	"testing"

	"bogofit/internal/infra"
)

func TestQueriesCarryMarkers(t *testing.T) {
	queries := map[string]string{
		"QEnsureFittingRuns":       QEnsureFittingRuns,
		"QUpsertFittingRun":        QUpsertFittingRun,
		"QSelectFittingRun":        QSelectFittingRun,
		"QLenientRate":             QLenientRate,
		"QEnsureIntegrationTokens": QEnsureIntegrationTokens,
		"QSelectIntegrationToken":  QSelectIntegrationToken,
		"QUpsertIntegrationToken":  QUpsertIntegrationToken,
	}
	seen := map[string]string{}
	for name, q := range queries {
		marker, body, err := infra.SplitMarker(q)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if body == "" {
			t.Fatalf("%s: empty body", name)
		}
		if other, dup := seen[marker]; dup {
			t.Fatalf("%s reuses marker of %s", name, other)
		}
		seen[marker] = name
	}
}
