// Package telemetry обеспечивает наблюдаемость Conveyor.
//
// Включает:
//   - logging.go — structured logging через slog, уровень TRACE для дампа доставок
//   - metrics.go — Prometheus метрики worker'а и agent'а
//
// Команда consume экспортирует метрики на /metrics endpoint.
package telemetry
