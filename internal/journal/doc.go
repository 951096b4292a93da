// Package journal записывает результаты обработки сообщений.
//
// Sink — хранилище записей. Реализации: PostgresSink (таблица
// conveyor_outcomes) и RedisSink (счётчики и ограниченный stream на очередь).
// Recorder подключает Sink к worker.Hooks.
package journal
