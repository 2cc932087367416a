package engine

import (
	"fmt"

	"github.com/shaiso/Procedura/internal/domain"
)

// runHook выполняет pre/post hook узла.
//
// Возвращает ошибку — и тем самым эскалирует её в ошибку шага — в двух
// случаях: hook обязательный и его вызов завершился неуспешно, либо
// pre hook вернул структурный precheck с отказом. Ошибка
// необязательного hook записывается в soft errors узла и логируется,
// исход узла не меняется.
func (p *Process) runHook(def *domain.NodeDef, spec *domain.HookSpec, phase string) error {
	if spec == nil {
		return nil
	}

	p.mu.Lock()
	st := p.states[def.ID]
	snap := p.contextJSONWithLocked(map[string]any{
		"step": map[string]any{
			"id":     def.ID,
			"type":   string(def.Type),
			"phase":  phase,
			"status": string(st.Status),
		},
	})
	p.mu.Unlock()

	res, err := p.callWith(snap, &spec.Action)
	if err == nil && phase == "pre" {
		err = checkPrecheck(res)
		if err != nil {
			// Отказ precheck — бизнес-отклонение шага, не сбой
			// транспорта: эскалируется независимо от required.
			return fmt.Errorf("%s hook for node %q: %w", phase, def.ID, err)
		}
	}
	if err == nil {
		return nil
	}

	if p.causedByAbort(err) {
		// Hook отменён глобальным abort — не ошибка узла.
		return nil
	}

	if spec.Required {
		return fmt.Errorf("%s hook for node %q: %w", phase, def.ID, err)
	}

	p.mu.Lock()
	st.SoftErrors = append(st.SoftErrors, fmt.Sprintf("%s hook: %v", phase, err))
	p.syncStepLocked(def.ID)
	p.mu.Unlock()
	p.logger.Warn("optional hook failed", "node", def.ID, "phase", phase, "error", err)
	return nil
}

// checkPrecheck проверяет структурный ответ pre hook: если тело содержит
// объект {"precheck": {"ok": false, "reason": ...}}, шаг отклоняется с
// описательной ошибкой. Ответы без поля precheck пропускаются.
func checkPrecheck(res map[string]any) error {
	body, ok := res["body"].(map[string]any)
	if !ok {
		return nil
	}
	pc, ok := body["precheck"].(map[string]any)
	if !ok {
		return nil
	}
	passed, ok := pc["ok"].(bool)
	if !ok || passed {
		return nil
	}
	reason, _ := pc["reason"].(string)
	if reason == "" {
		reason = "no reason given"
	}
	return fmt.Errorf("%w: %s", ErrPrecheckRejected, reason)
}
