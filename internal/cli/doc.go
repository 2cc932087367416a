// Package cli реализует инструмент командной строки Procedura.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Procedura API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для запуска процессов, подачи сигналов и
// управления расписаниями.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Procedura API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	procs, err := client.ListProcesses(cli.ListProcessesOpts{})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: procedura process list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - process: list, start, show, progress, children, signals,
//     approve, event
//   - schedule: list, create, show, update, delete, enable, disable
//
// Каждая группа создаётся через фабричную функцию (NewProcessCmd и
// т.д.), принимающую clientFn и outputFn — замыкания для ленивого
// создания Client и Output после парсинга PersistentFlags.
package cli
