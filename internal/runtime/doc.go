// Package runtime — in-process среда исполнения процессов.
//
// Реализует контракт engine.Host:
//   - caller.go  — side-effect вызовы внешних обработчиков по HTTP
//     с ретраями и таймаутом на попытку
//   - runtime.go — реестр маршрутов, запуск процессов (включая
//     дочерние), доставка сигналов, запросы прогресса
//   - store.go   — персистентность чекпоинтов (интерфейс Store и
//     in-memory реализация)
//
// Runtime держит активные процессы в памяти; каждый чекпоинт движка
// дополнительно сохраняется в Store, откуда прогресс завершённых
// процессов читается после выгрузки из памяти.
package runtime
