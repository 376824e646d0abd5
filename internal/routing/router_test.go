package routing

import (
	"reflect"
	"testing"

	"alertrouter/internal/config"
)

func newTestRouter(rules []config.RoutingRule) *Router {
	log := testLogger()
	return NewRouter(rules, NewMatcher(log), log)
}

func TestRouteDefaultOnlyOnNoMatch(t *testing.T) {
	t.Parallel()

	router := newTestRouter([]config.RoutingRule{
		{Match: map[string]string{"a": "x"}, SendTo: []string{"C1"}},
		{Default: true, SendTo: []string{"C2"}},
	})

	if got := router.Route(map[string]string{"a": "x"}); !reflect.DeepEqual(got, []string{"C1"}) {
		t.Fatalf("matched alert routed to %v, want [C1]", got)
	}
	if got := router.Route(map[string]string{"a": "y"}); !reflect.DeepEqual(got, []string{"C2"}) {
		t.Fatalf("unmatched alert routed to %v, want fallback [C2]", got)
	}
}

func TestRouteUnionsAndDeduplicates(t *testing.T) {
	t.Parallel()

	router := newTestRouter([]config.RoutingRule{
		{Match: map[string]string{"team": "infra"}, SendTo: []string{"ops", "infra-chat"}},
		{Match: map[string]string{"severity": "critical"}, SendTo: []string{"ops", "oncall"}},
	})

	got := router.Route(map[string]string{"team": "infra", "severity": "critical"})
	want := []string{"ops", "infra-chat", "oncall"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("routed to %v, want %v", got, want)
	}
}

func TestRouteFirstDefaultWins(t *testing.T) {
	t.Parallel()

	router := newTestRouter([]config.RoutingRule{
		{Default: true, SendTo: []string{"first"}},
		{Default: true, SendTo: []string{"second"}},
	})

	if got := router.Route(map[string]string{}); !reflect.DeepEqual(got, []string{"first"}) {
		t.Fatalf("routed to %v, want first default only", got)
	}
}

func TestRouteNothingConfiguredOrMatched(t *testing.T) {
	t.Parallel()

	if got := newTestRouter(nil).Route(map[string]string{"a": "x"}); len(got) != 0 {
		t.Fatalf("no rules should route nowhere, got %v", got)
	}

	router := newTestRouter([]config.RoutingRule{
		{Match: map[string]string{"a": "x"}, SendTo: []string{"C1"}},
	})
	if got := router.Route(map[string]string{"a": "y"}); len(got) != 0 {
		t.Fatalf("no match and no fallback should route nowhere, got %v", got)
	}
}

func TestRouteMatchesOnSourceLabel(t *testing.T) {
	t.Parallel()

	router := newTestRouter([]config.RoutingRule{
		{Match: map[string]string{"_source": "grafana"}, SendTo: []string{"grafana-chat"}},
		{Default: true, SendTo: []string{"ops"}},
	})

	got := router.Route(map[string]string{"alertname": "X", "_source": "grafana"})
	if !reflect.DeepEqual(got, []string{"grafana-chat"}) {
		t.Fatalf("routed to %v, want [grafana-chat]", got)
	}
}
