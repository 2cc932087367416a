package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

// Output управляет форматированием вывода CLI. Помимо общих Table/JSON
// предоставляет готовые представления для процессов, сигналов и schedules.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        os.Stdout,
		errW:     os.Stderr,
	}
}

// Processes выводит список процессов.
func (o *Output) Processes(procs []ProcessResponse) {
	rows := make([][]string, len(procs))
	for i, p := range procs {
		rows[i] = []string{p.ID, p.ProcessType, p.Status, p.CreatedAt}
	}
	o.print([]string{"ID", "TYPE", "STATUS", "CREATED"}, rows, procs)
}

// ProcessDetail выводит один процесс вместе со статусным сообщением.
func (o *Output) ProcessDetail(p *ProcessResponse) {
	o.print(
		[]string{"ID", "TYPE", "STATUS", "MESSAGE", "CREATED"},
		[][]string{{p.ID, p.ProcessType, p.Status, p.StatusMessage, p.CreatedAt}},
		p,
	)
}

// Signals выводит журнал сигналов процесса.
func (o *Output) Signals(signals []SignalResponse) {
	rows := make([][]string, len(signals))
	for i, s := range signals {
		rows[i] = []string{s.ID, s.Kind, s.EventID, s.ReceivedAt}
	}
	o.print([]string{"ID", "KIND", "EVENT_ID", "RECEIVED"}, rows, signals)
}

// Schedules выводит список schedules.
func (o *Output) Schedules(schedules []ScheduleResponse) {
	rows := make([][]string, len(schedules))
	for i, s := range schedules {
		rows[i] = []string{
			s.ID, s.ProcessType, s.Name, s.CronExpr, formatInterval(s.IntervalSec),
			strconv.FormatBool(s.Enabled), s.NextDueAt,
		}
	}
	o.print([]string{"ID", "TYPE", "NAME", "CRON", "INTERVAL", "ENABLED", "NEXT_DUE"}, rows, schedules)
}

// ScheduleDetail выводит один schedule вместе с таймзоной.
func (o *Output) ScheduleDetail(s *ScheduleResponse) {
	o.print(
		[]string{"ID", "TYPE", "NAME", "CRON", "INTERVAL", "TIMEZONE", "ENABLED", "NEXT_DUE"},
		[][]string{{
			s.ID, s.ProcessType, s.Name, s.CronExpr,
			formatInterval(s.IntervalSec), s.Timezone,
			strconv.FormatBool(s.Enabled), s.NextDueAt,
		}},
		s,
	)
}

// Snapshot выводит снапшот прогресса. Это вложенная структура,
// таблицей она не отображается, поэтому всегда JSON.
func (o *Output) Snapshot(v any) {
	o.JSON(v)
}

func (o *Output) print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	// Заголовки
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	// Разделитель
	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	// Строки данных
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

func formatInterval(sec int) string {
	if sec <= 0 {
		return ""
	}
	return strconv.Itoa(sec) + "s"
}
