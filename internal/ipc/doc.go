// Package ipc описывает типы, которыми обмениваются broker agent и processing worker.
//
// Между agent'ом и worker'ом нет общей изменяемой памяти — только две
// однонаправленные ограниченные очереди (Pair):
//
//	agent  ──Delivery / AgentFault──▶  worker
//	agent  ◀──Outcome / shutdown───── worker
//
// Типы сообщений:
//   - Delivery   — входящее сообщение брокера с delivery tag
//   - Outcome    — вердикт обработки (ack / nack + requeue)
//   - AgentFault — ошибка agent'а или сигнал штатного завершения
//
// Все типы — неизменяемые значения. Любой другой тип в очереди считается
// нарушением протокола (ошибка программиста) и приводит к panic на стороне получателя.
package ipc
