// Package engine содержит движок выполнения процессов.
//
// Включает:
//   - validate.go — валидация маршрута (Route)
//   - ready.go    — вычисление готовности узлов по зависимостям
//   - guard.go    — вычисление guard-выражений
//   - template.go — подстановка {{path}} в параметры узлов
//   - approval.go — агрегация голосов K-из-N
//   - process.go  — цикл планирования и состояние процесса
//   - node.go     — машина состояний узла и действия по типам
//   - hooks.go    — pre/post hooks и gate-проверки
//   - signals.go  — обработчики сигналов и запрос прогресса
//
// Движок написан против контракта Host (host.go): durable-исполнение,
// таймеры, дочерние процессы и side-effect вызовы предоставляет
// внешний runtime, движок их только потребляет.
package engine
