package engine

import (
	"fmt"
	"time"

	"github.com/shaiso/Procedura/internal/domain"
)

// Допустимые типы узлов маршрута.
var validNodeTypes = map[domain.NodeType]bool{
	domain.NodeHandlerHTTP:  true,
	domain.NodeGateHTTP:     true,
	domain.NodeApprovalKofN: true,
	domain.NodeEventWait:    true,
	domain.NodeTimerDelay:   true,
	domain.NodeTimerUntil:   true,
	domain.NodeChildStart:   true,
}

// ValidateRoute выполняет полную валидацию маршрута.
//
// Проверяет:
// - Наличие узлов
// - Уникальность ID узлов
// - Корректность типов узлов
// - Валидность зависимостей (after)
// - Типоспецифичные обязательные поля
//
// Циклы отдельно не ищутся: цикл проявится как deadlock во время
// исполнения и завершит процесс с диагностикой.
func ValidateRoute(route domain.Route) error {
	if len(route) == 0 {
		return ErrEmptyRoute
	}

	nodeIDs := make(map[string]bool)

	for i := range route {
		if err := validateNode(&route[i], nodeIDs); err != nil {
			return err
		}
	}

	return validateDependencies(route, nodeIDs)
}

// validateNode валидирует один узел.
// nodeIDs — уже встреченные ID узлов (для проверки уникальности).
func validateNode(def *domain.NodeDef, nodeIDs map[string]bool) error {
	if def.ID == "" {
		return NewRouteError("", "id", "node has empty ID", ErrEmptyNodeID)
	}

	if nodeIDs[def.ID] {
		return NewRouteError(def.ID, "id",
			fmt.Sprintf("duplicate node ID: %s", def.ID), ErrDuplicateNodeID)
	}
	nodeIDs[def.ID] = true

	if !validNodeTypes[def.Type] {
		return NewRouteError(def.ID, "type",
			fmt.Sprintf("unknown node type: %s", def.Type), ErrUnknownNodeType)
	}

	for _, dep := range def.After {
		if dep == def.ID {
			return NewRouteError(def.ID, "after",
				"node depends on itself", ErrSelfDependency)
		}
	}

	return validateNodeFields(def)
}

// validateNodeFields проверяет типоспецифичные обязательные поля.
func validateNodeFields(def *domain.NodeDef) error {
	switch def.Type {
	case domain.NodeHandlerHTTP:
		if def.Action == nil {
			return NewRouteError(def.ID, "action", "handler node requires an action", nil)
		}
		return validateAction(def.ID, "action", def.Action)
	case domain.NodeGateHTTP:
		if def.Action == nil {
			return NewRouteError(def.ID, "action", "gate node requires an action", nil)
		}
		return validateAction(def.ID, "action", def.Action)
	case domain.NodeApprovalKofN:
		// Пустой members — открытое голосование: голос принимается
		// от любого актора, кворум ограничен только K.
		if len(def.Members) > 0 && def.K > len(def.Members) {
			return NewRouteError(def.ID, "k",
				fmt.Sprintf("quorum %d exceeds member count %d", def.K, len(def.Members)), nil)
		}
		if def.Gate != nil {
			return validateAction(def.ID, "gate.action", &def.Gate.Action)
		}
		return nil
	case domain.NodeEventWait:
		if def.EventName == "" {
			return NewRouteError(def.ID, "event_name", "event node has empty event name", nil)
		}
		return nil
	case domain.NodeTimerDelay:
		if def.Ms <= 0 {
			return NewRouteError(def.ID, "ms",
				fmt.Sprintf("delay must be positive, got %d", def.Ms), nil)
		}
		return nil
	case domain.NodeTimerUntil:
		if _, err := time.Parse(time.RFC3339, def.At); err != nil {
			return NewRouteError(def.ID, "at",
				fmt.Sprintf("invalid RFC3339 timestamp: %s", def.At), err)
		}
		return nil
	case domain.NodeChildStart:
		if def.Child == nil {
			return NewRouteError(def.ID, "child", "child node requires a child spec", nil)
		}
		if def.Child.ProcessType == "" && len(def.Child.Route) == 0 {
			return NewRouteError(def.ID, "child",
				"child spec requires a process type or an inline route", nil)
		}
		if len(def.Child.Route) > 0 {
			if err := ValidateRoute(def.Child.Route); err != nil {
				return NewRouteError(def.ID, "child.route", "invalid child route", err)
			}
		}
		return nil
	}
	return nil
}

func validateAction(nodeID, field string, action *domain.ActionSpec) error {
	if action.Handler == "" {
		return NewRouteError(nodeID, field, "action has empty handler", nil)
	}
	if action.Path == "" {
		return NewRouteError(nodeID, field, "action has empty path", nil)
	}
	return nil
}

// validateDependencies проверяет, что все after ссылаются на существующие узлы.
func validateDependencies(route domain.Route, nodeIDs map[string]bool) error {
	for i := range route {
		def := &route[i]
		for _, dep := range def.After {
			if !nodeIDs[dep] {
				return NewRouteError(def.ID, "after",
					fmt.Sprintf("depends on unknown node: %s", dep), ErrMissingDependency)
			}
		}
	}
	return nil
}

// IsValidNodeType проверяет, является ли тип узла допустимым.
func IsValidNodeType(t domain.NodeType) bool {
	return validNodeTypes[t]
}
