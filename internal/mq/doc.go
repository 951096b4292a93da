// Package mq — слой работы с RabbitMQ.
//
// Структура:
//   - connection.go — интерфейсы примитивов брокера (Dialer, Connection, Channel)
//     и их реализация поверх amqp091-go
//   - topology.go   — планировщик топологии (основная очередь, deads exchange/queue)
//     и режимы объявления yes/no/only
//   - consumer.go   — подписка, преобразование доставок в ipc.Delivery, ack/nack
//   - publisher.go  — синхронный publisher с циклом переподключения
//
// Dialer внедряется через конструкторы, поэтому agent, publisher и тесты
// работают с любой реализацией (см. пакет mqtest — брокер в памяти).
//
// Топология для очереди orders.input:
//
//	orders.deads (exchange, direct)
//	└── orders.deads [routing: orders.deads]
//	orders.input [x-max-priority: 3, x-dead-letter-exchange: orders.deads]
package mq
