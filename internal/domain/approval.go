package domain

import "time"

// ApprovalState — состояние согласования одного approval.kofn узла.
//
// Создаётся лениво: при первом голосе или при первом планировании узла.
// Правила:
//   - approve принимается, если актор в Members (или Members пуст)
//     и ещё не голосовал; дубликаты и неавторизованные голоса
//     игнорируются молча (ретраи сигналов доброкачественны).
//   - Негативное решение финализирует узел независимо от числа голосов
//     и необратимо.
type ApprovalState struct {
	// K — требуемое число одобряющих голосов.
	K int `json:"k"`

	// Members — допустимые участники. Пусто — без ограничений.
	Members []string `json:"members,omitempty"`

	// ApprovedBy — акторы, проголосовавшие approve (без дубликатов,
	// в порядке поступления).
	ApprovedBy []string `json:"approved_by,omitempty"`

	// Decision — терминальное негативное решение (reject/needs_changes).
	// Пусто, пока решение не принято.
	Decision Decision `json:"decision,omitempty"`

	// DecidedBy — актор, принявший негативное решение.
	DecidedBy string `json:"decided_by,omitempty"`

	// Comment — комментарий к негативному решению.
	Comment string `json:"comment,omitempty"`

	// DecidedAt — время негативного решения.
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// HasVoted возвращает true, если актор уже голосовал approve.
func (a *ApprovalState) HasVoted(actor string) bool {
	for _, v := range a.ApprovedBy {
		if v == actor {
			return true
		}
	}
	return false
}

// IsMember возвращает true, если актор допущен к голосованию.
func (a *ApprovalState) IsMember(actor string) bool {
	if len(a.Members) == 0 {
		return true
	}
	for _, m := range a.Members {
		if m == actor {
			return true
		}
	}
	return false
}
