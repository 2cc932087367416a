package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Procedura/internal/domain"
)

func httpNode(id string, after ...string) domain.NodeDef {
	return domain.NodeDef{
		ID:     id,
		Type:   domain.NodeHandlerHTTP,
		After:  after,
		Action: &domain.ActionSpec{Handler: "crm", Path: "/do"},
	}
}

func TestValidateRoute_Valid(t *testing.T) {
	route := domain.Route{
		httpNode("A"),
		httpNode("B", "A"),
		{ID: "C", Type: domain.NodeApprovalKofN, After: []string{"B"}, K: 1, Members: []string{"alice"}},
	}
	if err := ValidateRoute(route); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRoute_UnrestrictedApproval(t *testing.T) {
	// Пустой members — открытое голосование, валидная конфигурация.
	route := domain.Route{
		{ID: "A", Type: domain.NodeApprovalKofN, K: 2},
	}
	if err := ValidateRoute(route); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRoute_Empty(t *testing.T) {
	if err := ValidateRoute(nil); !errors.Is(err, ErrEmptyRoute) {
		t.Errorf("expected ErrEmptyRoute, got %v", err)
	}
}

func TestValidateRoute_Errors(t *testing.T) {
	tests := []struct {
		name  string
		route domain.Route
		want  error
	}{
		{"empty id", domain.Route{httpNode("")}, ErrEmptyNodeID},
		{"duplicate id", domain.Route{httpNode("A"), httpNode("A")}, ErrDuplicateNodeID},
		{"unknown type", domain.Route{{ID: "A", Type: "magic"}}, ErrUnknownNodeType},
		{"missing dependency", domain.Route{httpNode("A", "ghost")}, ErrMissingDependency},
		{"self dependency", domain.Route{httpNode("A", "A")}, ErrSelfDependency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoute(tt.route)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			// Ошибка несёт контекст узла
			var rerr *RouteError
			if !errors.As(err, &rerr) {
				t.Errorf("expected *RouteError, got %T", err)
			}
		})
	}
}

func TestValidateRoute_TypeSpecificFields(t *testing.T) {
	tests := []struct {
		name  string
		route domain.Route
	}{
		{"handler without action", domain.Route{{ID: "A", Type: domain.NodeHandlerHTTP}}},
		{"action without handler", domain.Route{{ID: "A", Type: domain.NodeHandlerHTTP,
			Action: &domain.ActionSpec{Path: "/do"}}}},
		{"quorum exceeds members", domain.Route{{ID: "A", Type: domain.NodeApprovalKofN,
			K: 3, Members: []string{"alice"}}}},
		{"event without name", domain.Route{{ID: "A", Type: domain.NodeEventWait}}},
		{"delay without ms", domain.Route{{ID: "A", Type: domain.NodeTimerDelay}}},
		{"until with bad timestamp", domain.Route{{ID: "A", Type: domain.NodeTimerUntil, At: "tomorrow"}}},
		{"child without spec", domain.Route{{ID: "A", Type: domain.NodeChildStart}}},
		{"child without type or route", domain.Route{{ID: "A", Type: domain.NodeChildStart,
			Child: &domain.ChildSpec{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateRoute(tt.route); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestValidateRoute_InlineChildRoute(t *testing.T) {
	route := domain.Route{
		{ID: "A", Type: domain.NodeChildStart, Child: &domain.ChildSpec{
			Route: domain.Route{httpNode("inner")},
		}},
	}
	if err := ValidateRoute(route); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Невалидный вложенный маршрут отклоняется
	route[0].Child.Route = domain.Route{{ID: "inner", Type: "magic"}}
	if err := ValidateRoute(route); !errors.Is(err, ErrUnknownNodeType) {
		t.Errorf("expected ErrUnknownNodeType, got %v", err)
	}
}
