package domain

// NodeType — тип узла маршрута.
//
// Закрытое перечисление: движок диспетчеризует выполнение узла
// одним исчерпывающим switch по этому типу. Неизвестный тип —
// ошибка конфигурации, выявляется при валидации маршрута.
type NodeType string

const (
	// NodeHandlerHTTP — side-effect вызов внешнего обработчика.
	NodeHandlerHTTP NodeType = "handler.http"

	// NodeGateHTTP — side-effect вызов с проверкой результата (pass_when).
	NodeGateHTTP NodeType = "gate.http"

	// NodeApprovalKofN — согласование: K голосов из N участников.
	NodeApprovalKofN NodeType = "approval.kofn"

	// NodeEventWait — ожидание внешнего события по имени.
	NodeEventWait NodeType = "event.wait"

	// NodeTimerDelay — относительная задержка (мс).
	NodeTimerDelay NodeType = "timer.delay"

	// NodeTimerUntil — ожидание до абсолютного момента времени.
	NodeTimerUntil NodeType = "timer.until"

	// NodeChildStart — запуск вложенного процесса.
	NodeChildStart NodeType = "child.start"
)

// Route — декларативный граф процесса: упорядоченный список узлов.
//
// Route — это "программа" для движка. Движок не знает бизнес-семантики
// (найм, командировки, тикеты) — она целиком задаётся данными маршрута.
type Route []NodeDef

// NodeDef — определение одного узла маршрута.
//
// JSON-форма NodeDef — персистентный контракт: она сохраняется в БД,
// передаётся по API и должна проходить round-trip без потерь.
type NodeDef struct {
	// ID — уникальный идентификатор узла в рамках маршрута.
	// Используется в after и для ссылок из контекста (steps.<id>).
	ID string `json:"id"`

	// Type — тип узла (см. NodeType).
	Type NodeType `json:"type"`

	// After — список ID узлов, от которых зависит этот узел.
	// Узел становится готовым, когда все узлы из after в состоянии
	// done или skipped.
	After []string `json:"after,omitempty"`

	// Optional — если true, негативный исход узла (отклонённое
	// согласование, неудачный gate, упавший дочерний процесс)
	// НЕ вызывает глобальный abort. По умолчанию узел обязательный.
	Optional bool `json:"optional,omitempty"`

	// Guard — условие выполнения. Если guard вычисляется в false,
	// узел помечается skipped (guard_false) без выполнения.
	// Отсутствующий guard — узел выполняется безусловно.
	Guard *Expr `json:"guard,omitempty"`

	// Pre — hook, выполняемый перед основным действием узла.
	// Результат pre-hook проверяется на структурный precheck.
	Pre *HookSpec `json:"pre,omitempty"`

	// Post — hook, выполняемый после узла в любом исходе: done,
	// failed или skipped по guard. Исход узла передаётся hook'у
	// в метаданных step.status.
	Post *HookSpec `json:"post,omitempty"`

	// Gate — проверка с оценкой, привязанная к approval-узлу.
	// Выполняется после набора голосов, может понизить исход до rejected.
	Gate *GateSpec `json:"gate,omitempty"`

	// Action — параметры side-effect вызова (handler.http, gate.http).
	Action *ActionSpec `json:"action,omitempty"`

	// PassWhen — условие прохождения gate.http, вычисляется против
	// результата вызова (result.*).
	PassWhen *Expr `json:"pass_when,omitempty"`

	// Members — допустимые участники согласования (approval.kofn).
	// Пустой список — голосовать может кто угодно.
	Members []string `json:"members,omitempty"`

	// K — требуемое число одобряющих голосов (approval.kofn).
	K int `json:"k,omitempty"`

	// EventName — имя ожидаемого события (event.wait).
	EventName string `json:"event_name,omitempty"`

	// Ms — длительность задержки в миллисекундах (timer.delay).
	Ms int64 `json:"ms,omitempty"`

	// At — абсолютный момент времени в формате RFC3339 (timer.until).
	At string `json:"at,omitempty"`

	// Child — параметры запуска вложенного процесса (child.start).
	Child *ChildSpec `json:"child,omitempty"`

	// SetVars — значения, записываемые в context.vars после успешного
	// завершения узла. Значения рендерятся против контекста.
	SetVars map[string]any `json:"set_vars,omitempty"`
}

// Required возвращает true, если негативный исход узла должен
// вызывать глобальный abort процесса.
func (n *NodeDef) Required() bool {
	return !n.Optional
}

// ActionSpec — параметры side-effect вызова.
//
// Итоговый URL строится как handlerBaseURLs[Handler] + Path.
// Payload рендерится против контекста процесса перед вызовом.
type ActionSpec struct {
	// Handler — логическое имя обработчика (ключ в handler_base_urls).
	Handler string `json:"handler"`

	// Path — путь вызова относительно базового URL обработчика.
	Path string `json:"path"`

	// Method — HTTP-метод. По умолчанию POST.
	Method string `json:"method,omitempty"`

	// Payload — тело вызова (шаблоны {{path}} подставляются).
	Payload any `json:"payload,omitempty"`
}

// HookSpec — side-effect вызов до (pre) или после (post) узла.
type HookSpec struct {
	// Action — параметры вызова.
	Action ActionSpec `json:"action"`

	// Required — если true, ошибка hook эскалируется в ошибку шага.
	// Необязательный hook деградирует в soft error.
	Required bool `json:"required,omitempty"`
}

// GateSpec — проверка с оценкой для approval-узла.
type GateSpec struct {
	// Action — side-effect вызов, возвращающий оцениваемый результат.
	Action ActionSpec `json:"action"`

	// PassWhen — условие прохождения, вычисляется против result.*.
	PassWhen *Expr `json:"pass_when,omitempty"`

	// Required — если true, непройденный gate понижает исход
	// согласования до rejected.
	Required bool `json:"required,omitempty"`
}

// ChildSpec — параметры запуска вложенного процесса.
type ChildSpec struct {
	// ProcessType — тип процесса. Если Route не задан, runtime ищет
	// зарегистрированный маршрут по этому типу.
	ProcessType string `json:"process_type"`

	// Route — маршрут вложенного процесса (inline).
	Route Route `json:"route,omitempty"`

	// Document — документ вложенного процесса.
	// Рендерится против контекста родителя.
	Document map[string]any `json:"document,omitempty"`

	// Context — начальные vars вложенного процесса.
	Context map[string]any `json:"context,omitempty"`

	// HandlerBaseURLs — переопределение обработчиков для вложенного
	// процесса. Пусто — наследуются от родителя.
	HandlerBaseURLs map[string]string `json:"handler_base_urls,omitempty"`
}

// FindNode возвращает определение узла по ID или nil.
func (r Route) FindNode(id string) *NodeDef {
	for i := range r {
		if r[i].ID == id {
			return &r[i]
		}
	}
	return nil
}

// Dependents возвращает ID узлов, прямо зависящих от узла id.
func (r Route) Dependents(id string) []string {
	var out []string
	for i := range r {
		for _, dep := range r[i].After {
			if dep == id {
				out = append(out, r[i].ID)
				break
			}
		}
	}
	return out
}
