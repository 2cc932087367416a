package engine

import "github.com/shaiso/Procedura/internal/domain"

// Ready возвращает ID узлов, готовых к запуску: узел в pending, и каждая
// его зависимость в doneish-статусе (done или skipped). Порядок следует
// порядку объявления узлов в маршруте, функция чистая.
func Ready(route domain.Route, states map[string]*domain.NodeState) []string {
	var ready []string
	for i := range route {
		def := &route[i]
		st := states[def.ID]
		if st == nil || st.Status != domain.NodePending {
			continue
		}
		ok := true
		for _, dep := range def.After {
			ds := states[dep]
			if ds == nil || !ds.Status.IsDoneish() {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, def.ID)
		}
	}
	return ready
}
